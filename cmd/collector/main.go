package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"firehose/internal/api"
	"firehose/internal/application/factories/infrastructure"
	"firehose/internal/config"
	"firehose/internal/queue"
	"firehose/internal/usecase"
	"firehose/internal/worker"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize structured JSON logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	sink, err := infraFactory.Sink(ctx)
	if err != nil {
		logger.Error("failed to open sink", "driver", cfg.Sink.Driver, "error", err)
		os.Exit(1)
	}

	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	// The queue is owned here and shared by admission and the drainer.
	eventQueue := queue.New(cfg.Queue.Capacity)

	drainer := worker.NewDrainer(eventQueue, sink, infraFactory.DeadLetter(), worker.DrainerConfig{
		BatchSize:       cfg.Drain.BatchSize,
		EmptyBackoff:    cfg.Drain.EmptyBackoff,
		ErrorBackoff:    cfg.Drain.ErrorBackoff,
		WriteTimeout:    cfg.Drain.WriteTimeout,
		ShutdownTimeout: cfg.Drain.ShutdownTimeout,
	}, logger)

	drainCtx, stopDrain := context.WithCancel(context.Background())
	drainDone := make(chan error, 1)
	go func() {
		drainDone <- drainer.Run(drainCtx)
	}()

	admitEventUC := usecase.NewAdmitEvent(eventQueue)
	handlers := api.NewHandlers(admitEventUC, eventQueue, logger)
	apiHandler := api.NewRouter(handlers, redisClient, cfg.Redis.IdempotencyTTL)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: apiHandler,
	}

	go func() {
		logger.Info("Collector starting",
			"port", cfg.HTTP.Port,
			"sink", cfg.Sink.Driver,
			"queue_capacity", cfg.Queue.Capacity,
			"idempotency", redisClient != nil,
			"dead_letter", cfg.Kafka.DeadLetterEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down collector...")

	// Stop admissions before the final flush so nothing is enqueued behind it.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	stopDrain()
	if err := <-drainDone; err != nil {
		logger.Error("drainer stopped with error", "error", err)
	}

	logger.Info("Collector exiting")
}
