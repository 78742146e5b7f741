package worker

import (
	"context"
	"log/slog"

	"firehose/internal/domain/event"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_dead_lettered_events_total",
		Help: "The total number of events handed to the dead-letter path",
	})
	deadLetterErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_dead_letter_errors_total",
		Help: "The total number of failed dead-letter publishes",
	})
)

// LogDeadLetter is the dead-letter path used when no durable one is
// configured: the batch is logged and discarded.
type LogDeadLetter struct {
	logger *slog.Logger
}

func NewLogDeadLetter(logger *slog.Logger) *LogDeadLetter {
	return &LogDeadLetter{logger: logger}
}

func (l *LogDeadLetter) Publish(_ context.Context, batch []event.Event, cause error) error {
	var first, last any
	if len(batch) > 0 {
		first, last = batch[0].ProducerID, batch[len(batch)-1].ProducerID
	}
	l.logger.Warn("dropping failed batch",
		"size", len(batch),
		"first_producer_id", first,
		"last_producer_id", last,
		"error", cause)
	return nil
}
