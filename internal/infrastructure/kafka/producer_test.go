package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"firehose/internal/domain/event"

	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishWrapsBatchInEnvelope(t *testing.T) {
	w := &recordingWriter{}
	p := &Producer{writer: w, producer: "collector"}

	batch := []event.Event{{ProducerID: 42, Attributes: map[string]any{"k": "v"}}, {ProducerID: 43}}
	if err := p.Publish(context.Background(), batch, errors.New("db down")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages %d, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "42" {
		t.Fatalf("key %q, want 42", w.msgs[0].Key)
	}

	var msg event.Message
	if err := json.Unmarshal(w.msgs[0].Value, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != event.TypeBatchFailed || msg.Error != "db down" || msg.Producer != "collector" || msg.ID == "" {
		t.Fatalf("envelope %+v", msg)
	}
	if len(msg.Events) != 2 || msg.Events[0].ProducerID != 42 || msg.Events[0].Attributes["k"] != "v" {
		t.Fatalf("events %+v", msg.Events)
	}
}

func TestPublishReturnsWriterError(t *testing.T) {
	p := &Producer{writer: &recordingWriter{err: errors.New("no brokers")}}
	if err := p.Publish(context.Background(), []event.Event{{ProducerID: 1}}, nil); err == nil {
		t.Fatalf("want error")
	}
}

func TestDecodeDeadLetterRoundTrip(t *testing.T) {
	w := &recordingWriter{}
	p := &Producer{writer: w, producer: "collector"}
	if err := p.Publish(context.Background(), []event.Event{{ProducerID: 5}}, errors.New("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	dl, err := DecodeDeadLetter(w.msgs[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(dl.Events) != 1 || dl.Events[0].ProducerID != 5 {
		t.Fatalf("events %+v", dl.Events)
	}

	if _, err := DecodeDeadLetter(kafka.Message{Value: []byte(`{"type":"Other"}`)}); err == nil {
		t.Fatalf("want error for foreign message type")
	}
}

func TestDecodeDeadLetterKeepsLargeIntegersExact(t *testing.T) {
	value := []byte(`{"id":"x","type":"EventBatchFailed","events":[{"user_id":1,"timestamp":"2026-01-10T10:30:00Z","metadata":{"order_id":9007199254740993}}]}`)

	dl, err := DecodeDeadLetter(kafka.Message{Value: value})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	w := &recordingWriter{}
	p := &Producer{writer: w, producer: "collector"}
	if err := p.Publish(context.Background(), dl.Events, errors.New("again")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	again, err := DecodeDeadLetter(w.msgs[0])
	if err != nil {
		t.Fatalf("decode republished: %v", err)
	}

	text, err := again.Events[0].MetadataText()
	if err != nil {
		t.Fatalf("metadata text: %v", err)
	}
	if want := `{"order_id":9007199254740993}`; text != want {
		t.Fatalf("metadata %s, want %s", text, want)
	}
}
