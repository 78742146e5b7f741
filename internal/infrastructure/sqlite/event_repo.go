package sqlite

import (
	"context"
	"fmt"

	"firehose/internal/domain/event"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER,
	timestamp TEXT,
	metadata TEXT
)
`

const insertEventSql = `INSERT INTO events (user_id, timestamp, metadata) VALUES (?, ?, ?)`

// EventRepository appends event batches to a sqlite file.
type EventRepository struct {
	db *sqlx.DB
}

// Open connects to the database at path and creates the events table if
// it does not exist yet.
func Open(ctx context.Context, path string) (*EventRepository, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite %s: %w", path, err)
	}
	// one writer; sqlite serializes writes anyway
	db.SetMaxOpenConns(1)

	repo := NewEventRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create events table: %w", err)
	}
	return nil
}

// WriteBatch inserts every event of the batch in one transaction.
func (r *EventRepository) WriteBatch(ctx context.Context, batch []event.Event) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, insertEventSql)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range batch {
		metadata, err := e.MetadataText()
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, e.ProducerID, e.TimestampText(), metadata); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (r *EventRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM events"); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func (r *EventRepository) Close() error {
	return r.db.Close()
}
