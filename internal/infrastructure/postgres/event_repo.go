package postgres

import (
	"context"
	"fmt"

	"firehose/internal/domain/event"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventsSchema = `
	CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT,
		timestamp TEXT,
		metadata TEXT
	)
`

var eventColumns = []string{"user_id", "timestamp", "metadata"}

type EventRepository struct {
	pool      *pgxpool.Pool
	txManager Transactor
}

func NewEventRepository(pool *pgxpool.Pool, txManager Transactor) *EventRepository {
	return &EventRepository{pool: pool, txManager: txManager}
}

func (r *EventRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, eventsSchema); err != nil {
		return fmt.Errorf("create events table: %w", err)
	}
	return nil
}

// WriteBatch copies the batch into the events table inside one transaction.
func (r *EventRepository) WriteBatch(ctx context.Context, batch []event.Event) error {
	rows, err := eventRows(batch)
	if err != nil {
		return err
	}

	return r.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		tx := GetTx(txCtx)
		if tx == nil {
			return fmt.Errorf("copy events: no transaction in context")
		}

		n, err := tx.CopyFrom(txCtx, pgx.Identifier{"events"}, eventColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy events: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("copy events: wrote %d of %d rows", n, len(rows))
		}
		return nil
	})
}

type StoredEvent struct {
	ID        int64
	UserID    int64
	Timestamp string
	Metadata  string
}

func (r *EventRepository) Latest(ctx context.Context, limit int) ([]StoredEvent, error) {
	const sql = `
		SELECT id, COALESCE(user_id, 0), COALESCE(timestamp, ''), COALESCE(metadata, '')
		FROM events
		ORDER BY id DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Timestamp, &e.Metadata); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

func (r *EventRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func eventRows(batch []event.Event) ([][]any, error) {
	rows := make([][]any, 0, len(batch))
	for _, e := range batch {
		metadata, err := e.MetadataText()
		if err != nil {
			return nil, err
		}
		rows = append(rows, []any{e.ProducerID, e.TimestampText(), metadata})
	}
	return rows, nil
}
