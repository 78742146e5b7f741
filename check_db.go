package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"firehose/internal/infrastructure/postgres"
)

func main() {
	host := flag.String("host", "localhost", "postgres host")
	port := flag.String("port", "5432", "postgres port")
	limit := flag.Int("n", 5, "number of latest events to print")
	flag.Parse()

	ctx := context.Background()
	pool, err := postgres.NewClient(ctx, postgres.Config{
		Host:     *host,
		Port:     *port,
		User:     "user",
		Password: "password",
		DBName:   "firehose",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := postgres.NewEventRepository(pool, postgres.NewTxManager(pool))

	total, err := repo.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("--- Events (%d stored) ---\n", total)

	events, err := repo.Latest(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	for _, e := range events {
		fmt.Printf("ID: %d | User: %d | Timestamp: %s | Metadata: %s\n", e.ID, e.UserID, e.Timestamp, e.Metadata)
	}
}
