package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	SinkSQLite   = "sqlite"
	SinkPostgres = "postgres"
)

type Config struct {
	App      App      `yaml:"app"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
	Queue    Queue    `yaml:"queue"`
	Drain    Drain    `yaml:"drain"`
	Sink     Sink     `yaml:"sink"`
	SQLite   SQLite   `yaml:"sqlite"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"firehose-collector"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port            string        `yaml:"port" env:"HTTP_PORT" env-default:"8000"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// SlogLevel maps Level onto slog; unknown values mean info.
func (l Log) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Queue sizes the in-memory admission buffer. Capacity is the only
// back-pressure knob; the queue never grows past it.
type Queue struct {
	Capacity int `yaml:"capacity" env:"QUEUE_CAPACITY" env-default:"30000"`
}

type Drain struct {
	BatchSize       int           `yaml:"batch_size" env:"DRAIN_BATCH_SIZE" env-default:"200"`
	EmptyBackoff    time.Duration `yaml:"empty_backoff" env:"DRAIN_EMPTY_BACKOFF" env-default:"100ms"`
	ErrorBackoff    time.Duration `yaml:"error_backoff" env:"DRAIN_ERROR_BACKOFF" env-default:"1s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"DRAIN_WRITE_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"DRAIN_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type Sink struct {
	Driver string `yaml:"driver" env:"SINK_DRIVER" env-default:"sqlite"`
}

type SQLite struct {
	Path string `yaml:"path" env:"SQLITE_PATH" env-default:"events.db"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"firehose"`
}

// Redis backs the ingestion idempotency keys. An empty Addr disables it.
type Redis struct {
	Addr           string        `yaml:"addr" env:"REDIS_ADDR"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl" env:"REDIS_IDEMPOTENCY_TTL" env-default:"24h"`
}

type Kafka struct {
	Brokers           []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	DeadLetterTopic   string   `yaml:"dead_letter_topic" env:"KAFKA_DEAD_LETTER_TOPIC" env-default:"events-dead-letter"`
	DeadLetterEnabled bool     `yaml:"dead_letter_enabled" env:"KAFKA_DEAD_LETTER_ENABLED" env-default:"false"`
	GroupID           string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"firehose-replay"`
}

func New() (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		// fallback to env vars if file not found
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else {
		// Allow env vars to override config file
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Queue.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("queue.capacity must be positive, got %d", c.Queue.Capacity))
	}
	if c.Drain.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("drain.batch_size must be positive, got %d", c.Drain.BatchSize))
	}
	if c.Drain.EmptyBackoff <= 0 {
		errs = append(errs, fmt.Errorf("drain.empty_backoff must be positive, got %s", c.Drain.EmptyBackoff))
	}
	if c.Drain.ErrorBackoff <= 0 {
		errs = append(errs, fmt.Errorf("drain.error_backoff must be positive, got %s", c.Drain.ErrorBackoff))
	}
	switch c.Sink.Driver {
	case SinkSQLite, SinkPostgres:
	default:
		errs = append(errs, fmt.Errorf("sink.driver must be %q or %q, got %q", SinkSQLite, SinkPostgres, c.Sink.Driver))
	}
	if c.Kafka.DeadLetterEnabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers required when dead letter is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
