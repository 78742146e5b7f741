package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"firehose/internal/usecase"
)

// QueueStats exposes queue occupancy for the health endpoint.
type QueueStats interface {
	Len() int
	Cap() int
}

type Handlers struct {
	admitEventUC *usecase.AdmitEvent
	queue        QueueStats
	logger       *slog.Logger
}

func NewHandlers(admitEventUC *usecase.AdmitEvent, queue QueueStats, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		admitEventUC: admitEventUC,
		queue:        queue,
		logger:       logger,
	}
}

func (h *Handlers) CollectEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    int64          `json:"user_id"`
		Timestamp time.Time      `json:"timestamp"`
		Metadata  map[string]any `json:"metadata"`
	}

	// numbers in metadata stay as their literal text
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
		return
	}

	params := usecase.AdmitEventParams{
		UserID:    req.UserID,
		Timestamp: req.Timestamp,
		Metadata:  req.Metadata,
	}

	if err := h.admitEventUC.Execute(r.Context(), params); err != nil {
		if errors.Is(err, usecase.ErrQueueFull) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "Queue is full, try again later"})
			return
		}
		h.logger.Error("admit event failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"queue_depth":    h.queue.Len(),
		"queue_capacity": h.queue.Cap(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
