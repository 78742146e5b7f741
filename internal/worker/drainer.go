package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"firehose/internal/domain/event"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collector_queue_depth",
		Help: "Events waiting in the admission queue",
	})
	batchesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_batches_written_total",
		Help: "The total number of batches persisted by the sink",
	})
	eventsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_events_written_total",
		Help: "The total number of events persisted by the sink",
	})
	writeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_batch_write_errors_total",
		Help: "The total number of failed batch writes",
	})
	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "collector_batch_size",
		Help:    "Number of events per non-empty batch",
		Buckets: []float64{1, 10, 50, 100, 200, 500},
	})
	writeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "collector_batch_write_duration_seconds",
		Help:    "Time taken to write one batch",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// Source is the consumer side of the admission queue.
type Source interface {
	TryDequeue() (event.Event, bool)
	Len() int
}

type DrainerConfig struct {
	BatchSize       int
	EmptyBackoff    time.Duration
	ErrorBackoff    time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Drainer moves events from the queue to the sink in batches. Exactly one
// Run loop should be active per sink.
type Drainer struct {
	source     Source
	sink       event.Sink
	deadLetter event.DeadLetter
	cfg        DrainerConfig
	logger     *slog.Logger
}

func NewDrainer(source Source, sink event.Sink, deadLetter event.DeadLetter, cfg DrainerConfig, logger *slog.Logger) *Drainer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.EmptyBackoff <= 0 {
		cfg.EmptyBackoff = 100 * time.Millisecond
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deadLetter == nil {
		deadLetter = NewLogDeadLetter(logger)
	}

	return &Drainer{
		source:     source,
		sink:       sink,
		deadLetter: deadLetter,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run drains until ctx is cancelled, then flushes what is left in the
// queue and returns.
func (d *Drainer) Run(ctx context.Context) error {
	d.logger.Info("batch drainer started",
		"batch_size", d.cfg.BatchSize,
		"empty_backoff", d.cfg.EmptyBackoff,
		"error_backoff", d.cfg.ErrorBackoff)

	for {
		n, err := d.drainOnce(ctx)

		var backoff time.Duration
		switch {
		case err != nil:
			backoff = d.cfg.ErrorBackoff
		case n == 0:
			backoff = d.cfg.EmptyBackoff
		}

		if backoff > 0 {
			if !sleep(ctx, backoff) {
				return d.flush()
			}
		} else if ctx.Err() != nil {
			return d.flush()
		}
	}
}

// drainOnce assembles one batch and, if it is non-empty, writes it.
// It returns the batch size and the write error, if any.
func (d *Drainer) drainOnce(ctx context.Context) (int, error) {
	batch := d.nextBatch()
	queueDepth.Set(float64(d.source.Len()))

	if len(batch) == 0 {
		return 0, nil
	}

	if err := d.write(ctx, batch); err != nil {
		d.reject(ctx, batch, err)
		return len(batch), err
	}
	return len(batch), nil
}

// nextBatch takes up to BatchSize events, stopping early when the queue
// runs dry.
func (d *Drainer) nextBatch() []event.Event {
	var batch []event.Event
	for len(batch) < d.cfg.BatchSize {
		e, ok := d.source.TryDequeue()
		if !ok {
			break
		}
		batch = append(batch, e)
	}
	return batch
}

// write runs the sink with its own timeout. The write is detached from
// ctx cancellation so a shutdown signal does not abort an in-flight batch,
// but it never outlives a deadline already set on ctx.
func (d *Drainer) write(ctx context.Context, batch []event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()

	writeCtx, cancel := d.detach(ctx)
	defer cancel()

	started := time.Now()
	if err := d.sink.WriteBatch(writeCtx, batch); err != nil {
		return fmt.Errorf("write batch of %d: %w", len(batch), err)
	}

	writeDuration.Observe(time.Since(started).Seconds())
	batchSize.Observe(float64(len(batch)))
	batchesWritten.Inc()
	eventsWritten.Add(float64(len(batch)))
	d.logger.Debug("wrote batch", "size", len(batch), "duration", time.Since(started))
	return nil
}

// reject records a failed batch and hands it to the dead-letter path.
// The batch is not requeued.
func (d *Drainer) reject(ctx context.Context, batch []event.Event, cause error) {
	writeErrors.Inc()
	d.logger.Error("batch write failed", "size", len(batch), "error", cause)

	dlCtx, cancel := d.detach(ctx)
	defer cancel()

	if err := d.publishDeadLetter(dlCtx, batch, cause); err != nil {
		deadLetterErrors.Inc()
		d.logger.Error("dead letter publish failed, batch dropped", "size", len(batch), "error", err)
		return
	}
	deadLettered.Add(float64(len(batch)))
}

// detach drops ctx cancellation and applies WriteTimeout, shortened to
// whatever is left of ctx's deadline. During flush that deadline is the
// shutdown budget.
func (d *Drainer) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := d.cfg.WriteTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (d *Drainer) publishDeadLetter(ctx context.Context, batch []event.Event, cause error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dead letter panic: %v", r)
		}
	}()
	return d.deadLetter.Publish(ctx, batch, cause)
}

// flush is the last drain pass after cancellation. It writes whatever is
// queued within ShutdownTimeout, without backing off between failures.
func (d *Drainer) flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
	defer cancel()

	var flushed, failed int
	for ctx.Err() == nil {
		n, err := d.drainOnce(ctx)
		if n == 0 {
			break
		}
		if err != nil {
			failed += n
			continue
		}
		flushed += n
	}

	remaining := d.source.Len()
	d.logger.Info("batch drainer stopped", "flushed", flushed, "failed", failed, "remaining", remaining)

	if remaining > 0 {
		return fmt.Errorf("shutdown flush left %d events queued", remaining)
	}
	return nil
}

// sleep waits for d or until ctx is done. It reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
