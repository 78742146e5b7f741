package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"firehose/internal/config"
	"firehose/internal/domain/event"
	"firehose/internal/infrastructure/kafka"
	"firehose/internal/infrastructure/postgres"
	"firehose/internal/infrastructure/redis"
	"firehose/internal/infrastructure/sqlite"

	pgxpool "github.com/jackc/pgx/v5/pgxpool"
	go_redis "github.com/redis/go-redis/v9"
)

type Factory struct {
	cfg      *config.Config
	logger   *slog.Logger
	pgPool   *pgxpool.Pool
	redisCli *go_redis.Client
	sqliteDB *sqlite.EventRepository
	producer *kafka.Producer
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	var pool *pgxpool.Pool
	var err error

	// Retry connection up to 5 times
	for i := 0; i < 5; i++ {
		pool, err = postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
		})
		if err == nil {
			break
		}
		f.logger.Warn("failed to connect to postgres, retrying in 2s", "attempt", i+1, "max", 5, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to init postgres after retries: %w", err)
	}

	f.pgPool = pool
	return pool, nil
}

// Redis returns nil without error when no address is configured.
func (f *Factory) Redis(ctx context.Context) (*go_redis.Client, error) {
	if f.redisCli != nil || f.cfg.Redis.Addr == "" {
		return f.redisCli, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr: f.cfg.Redis.Addr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	f.redisCli = client
	return client, nil
}

// Sink opens the configured persistence backend and ensures its schema.
func (f *Factory) Sink(ctx context.Context) (event.Sink, error) {
	switch f.cfg.Sink.Driver {
	case config.SinkPostgres:
		pool, err := f.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		repo := postgres.NewEventRepository(pool, postgres.NewTxManager(pool))
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		return repo, nil

	case config.SinkSQLite:
		if f.sqliteDB != nil {
			return f.sqliteDB, nil
		}
		repo, err := sqlite.Open(ctx, f.cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		f.sqliteDB = repo
		return repo, nil

	default:
		return nil, fmt.Errorf("unknown sink driver %q", f.cfg.Sink.Driver)
	}
}

// DeadLetter returns the kafka publisher when enabled, otherwise nil so
// the drainer falls back to logging dropped batches.
func (f *Factory) DeadLetter() event.DeadLetter {
	if !f.cfg.Kafka.DeadLetterEnabled {
		return nil
	}
	if f.producer == nil {
		f.producer = kafka.NewProducer(kafka.Config{
			Brokers: f.cfg.Kafka.Brokers,
			Topic:   f.cfg.Kafka.DeadLetterTopic,
		}, f.cfg.App.Name)
	}
	return f.producer
}

func (f *Factory) Close() {
	if f.producer != nil {
		if err := f.producer.Close(); err != nil {
			f.logger.Error("close kafka producer", "error", err)
		}
	}
	if f.sqliteDB != nil {
		if err := f.sqliteDB.Close(); err != nil {
			f.logger.Error("close sqlite", "error", err)
		}
	}
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.redisCli != nil {
		f.redisCli.Close()
	}
}
