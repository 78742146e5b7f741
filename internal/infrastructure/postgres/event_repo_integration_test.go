package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"firehose/internal/domain/event"

	"github.com/jackc/pgx/v5/pgxpool"
)

// testPool connects to POSTGRES_TEST_DSN and skips the test when it is unset.
// Rows are tagged with a user_id unique to the test and removed on cleanup.
func testPool(t *testing.T) (*pgxpool.Pool, int64) {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	repo := NewEventRepository(pool, NewTxManager(pool))
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		t.Fatalf("migrate: %v", err)
	}

	userID := -time.Now().UnixNano()
	t.Cleanup(func() {
		pool.Exec(context.Background(), "DELETE FROM events WHERE user_id = $1", userID)
		pool.Close()
	})
	return pool, userID
}

func rowsFor(t *testing.T, pool *pgxpool.Pool, userID int64) []StoredEvent {
	t.Helper()
	rows, err := pool.Query(context.Background(),
		"SELECT id, user_id, timestamp, metadata FROM events WHERE user_id = $1 ORDER BY id", userID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Timestamp, &e.Metadata); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return out
}

func TestWriteBatchCopiesRows(t *testing.T) {
	pool, userID := testPool(t)
	repo := NewEventRepository(pool, NewTxManager(pool))
	ts := time.Date(2026, 1, 10, 10, 30, 0, 0, time.UTC)

	err := repo.WriteBatch(context.Background(), []event.Event{
		{ProducerID: userID, OccurredAt: ts, Attributes: map[string]any{"page": "/home"}},
		{ProducerID: userID, OccurredAt: ts},
	})
	if err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	got := rowsFor(t, pool, userID)
	if len(got) != 2 {
		t.Fatalf("rows %d, want 2", len(got))
	}
	if got[0].Timestamp != "2026-01-10T10:30:00Z" || got[0].Metadata != `{"page":"/home"}` {
		t.Fatalf("row 0 %+v", got[0])
	}
	if got[1].Metadata != "{}" {
		t.Fatalf("row 1 metadata %q", got[1].Metadata)
	}
}

func TestWithinTransactionCommitsAndRollsBack(t *testing.T) {
	pool, userID := testPool(t)
	tm := NewTxManager(pool)
	ctx := context.Background()

	insert := func(txCtx context.Context, metadata string) error {
		_, err := GetTx(txCtx).Exec(txCtx,
			"INSERT INTO events (user_id, timestamp, metadata) VALUES ($1, $2, $3)",
			userID, "2026-01-10T10:30:00Z", metadata)
		return err
	}

	if err := tm.WithinTransaction(ctx, func(txCtx context.Context) error {
		return insert(txCtx, `{"outcome":"commit"}`)
	}); err != nil {
		t.Fatalf("commit path: %v", err)
	}

	errAbort := errors.New("abort")
	err := tm.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := insert(txCtx, `{"outcome":"rollback"}`); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("rollback path: got %v, want errAbort", err)
	}

	got := rowsFor(t, pool, userID)
	if len(got) != 1 || got[0].Metadata != `{"outcome":"commit"}` {
		t.Fatalf("rows %+v, want only the committed one", got)
	}
}

func TestGetTxOutsideTransaction(t *testing.T) {
	if tx := GetTx(context.Background()); tx != nil {
		t.Fatalf("GetTx returned %v outside a transaction", tx)
	}
}
