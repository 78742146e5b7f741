package usecase

import (
	"context"
	"errors"
	"time"

	"firehose/internal/domain/event"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrQueueFull means the event was not accepted. The caller decides
// whether to retry or drop it.
var ErrQueueFull = errors.New("queue is full")

var (
	eventsAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_events_admitted_total",
		Help: "The total number of events accepted into the queue",
	})
	eventsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_events_rejected_total",
		Help: "The total number of events rejected because the queue was full",
	})
)

type Enqueuer interface {
	TryEnqueue(e event.Event) bool
}

type AdmitEvent struct {
	queue Enqueuer
}

func NewAdmitEvent(queue Enqueuer) *AdmitEvent {
	return &AdmitEvent{queue: queue}
}

type AdmitEventParams struct {
	UserID    int64          `json:"user_id"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// Execute enqueues one event without waiting on persistence.
func (uc *AdmitEvent) Execute(_ context.Context, params AdmitEventParams) error {
	e := event.Event{
		ProducerID: params.UserID,
		OccurredAt: params.Timestamp,
		Attributes: params.Metadata,
	}

	if !uc.queue.TryEnqueue(e.Clone()) {
		eventsRejected.Inc()
		return ErrQueueFull
	}

	eventsAdmitted.Inc()
	return nil
}
