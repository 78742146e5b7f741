package api

import (
	"net/http"
	"time"

	"firehose/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// NewRouter wires the ingestion routes. A nil redisClient disables
// Idempotency-Key handling.
func NewRouter(h *Handlers, redisClient *redis.Client, idempotencyTTL time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(ChiMiddleware.RequestID)
	r.Use(ChiMiddleware.Recoverer)

	r.Get("/health", h.Health)

	collect := http.HandlerFunc(h.CollectEvent)
	if redisClient != nil {
		r.With(middleware.Idempotency(redisClient, idempotencyTTL)).Post("/event", collect)
	} else {
		r.Post("/event", collect)
	}

	r.Handle("/metrics", promhttp.Handler())

	return r
}
