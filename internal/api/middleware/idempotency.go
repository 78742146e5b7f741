package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

const (
	stateProcessing = "PROCESSING"
	stateAccepted   = "ACCEPTED"
)

// Idempotency makes POST requests carrying an Idempotency-Key header
// admit at most once per key. A key is only remembered when the request
// succeeded; rejected requests release it so the client can retry.
func Idempotency(redisClient redis.Cmdable, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			idemKey := fmt.Sprintf("idempotency:event:%s", key)
			ctx := r.Context()

			val, err := redisClient.Get(ctx, idemKey).Result()
			switch {
			case err == nil && val == stateAccepted:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Hit", "true")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"status":"duplicate"}`))
				return
			case err == nil:
				conflict(w)
				return
			case err != redis.Nil:
				// redis unavailable: admit without deduplication
				next.ServeHTTP(w, r)
				return
			}

			// short TTL so a crashed request does not hold the key forever
			acquired, err := redisClient.SetNX(ctx, idemKey, stateProcessing, 10*time.Second).Result()
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				conflict(w)
				return
			}

			ww := ChiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			bg := context.WithoutCancel(ctx)
			if status := ww.Status(); status >= 200 && status < 300 {
				redisClient.Set(bg, idemKey, stateAccepted, ttl)
			} else {
				redisClient.Del(bg, idemKey)
			}
		})
	}
}

func conflict(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	w.Write([]byte(`{"detail":"concurrent request with the same Idempotency-Key"}`))
}
