package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"firehose/internal/domain/event"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes batches the sink could not persist to the
// dead-letter topic, one message per batch.
type Producer struct {
	writer   messageWriter
	producer string
}

func NewProducer(cfg Config, producer string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            5,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &Producer{writer: w, producer: producer}
}

// Publish satisfies event.DeadLetter.
func (p *Producer) Publish(ctx context.Context, batch []event.Event, cause error) error {
	msg := event.Message{
		ID:         uuid.New().String(),
		Type:       event.TypeBatchFailed,
		Producer:   p.producer,
		OccurredAt: time.Now().UTC(),
		Events:     batch,
	}
	if cause != nil {
		msg.Error = cause.Error()
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dead letter %s: %w", msg.ID, err)
	}

	key := []byte(msg.ID)
	if len(batch) > 0 {
		key = []byte(strconv.FormatInt(batch[0].ProducerID, 10))
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
