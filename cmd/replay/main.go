package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firehose/internal/application/factories/infrastructure"
	"firehose/internal/config"
	"firehose/internal/infrastructure/kafka"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	batchesReplayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replay_batches_total",
		Help: "The total number of dead-lettered batches written back to the sink",
	})
)

// replay reads failed batches from the dead-letter topic and writes them
// to the configured sink, committing each message only after the write.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Replay metrics listening on :9093")
		if err := http.ListenAndServe(":9093", mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	sink, err := infraFactory.Sink(ctx)
	if err != nil {
		logger.Error("failed to open sink", "driver", cfg.Sink.Driver, "error", err)
		os.Exit(1)
	}

	kafkaConsumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.DeadLetterTopic, cfg.Kafka.GroupID)
	defer kafkaConsumer.Close()

	logger.Info("Dead letter replay started", "topic", cfg.Kafka.DeadLetterTopic, "group_id", cfg.Kafka.GroupID)

	for {
		msg, err := kafkaConsumer.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("failed to fetch message", "error", err)
			if !wait(ctx, 1*time.Second) {
				break
			}
			continue
		}

		const maxRetries = 5
		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				backoff := time.Duration(1<<attempt) * time.Second
				logger.Info("Retry attempt", "attempt", attempt, "max", maxRetries, "backoff", backoff)
				if !wait(ctx, backoff) {
					break
				}
			}

			processErr := func() error {
				dl, err := kafka.DecodeDeadLetter(msg)
				if err != nil {
					// Not our envelope (or corrupt). Commit and move on.
					logger.Error("skipping message", "offset", msg.Offset, "error", err)
					return nil
				}
				if len(dl.Events) == 0 {
					return nil
				}

				writeCtx, writeCancel := context.WithTimeout(ctx, cfg.Drain.WriteTimeout)
				defer writeCancel()
				if err := sink.WriteBatch(writeCtx, dl.Events); err != nil {
					return fmt.Errorf("write batch %s: %w", dl.ID, err)
				}

				batchesReplayed.Inc()
				logger.Info("Batch replayed", "id", dl.ID, "size", len(dl.Events), "original_error", dl.Error)
				return nil
			}()

			if processErr == nil {
				if err := kafkaConsumer.CommitMessages(ctx, msg); err != nil {
					logger.Error("failed to commit kafka message", "error", err)
				}
				break
			}

			logger.Error("Replay failed", "error", processErr)
			if attempt == maxRetries {
				// leave uncommitted so the batch is redelivered on restart
				logger.Error("Giving up on batch until restart", "retries", maxRetries, "offset", msg.Offset)
				cancel()
			}
		}

		if ctx.Err() != nil {
			break
		}
	}

	logger.Info("Dead letter replay stopped")
}

// wait pauses for d unless ctx ends first, in which case it reports false.
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
