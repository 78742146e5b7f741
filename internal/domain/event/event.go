package event

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Event is the unit of ingestion. Field names on the wire follow the
// collector's public payload: user_id, timestamp, metadata.
type Event struct {
	ProducerID int64          `json:"user_id"`
	OccurredAt time.Time      `json:"timestamp"`
	Attributes map[string]any `json:"metadata"`
}

// Clone returns a copy whose attribute map is not shared with e.
func (e Event) Clone() Event {
	e.Attributes = maps.Clone(e.Attributes)
	return e
}

// TimestampText is the storage encoding of OccurredAt.
func (e Event) TimestampText() string {
	return e.OccurredAt.Format(time.RFC3339Nano)
}

// MetadataText is the storage encoding of Attributes. A nil map is
// stored as an empty JSON object.
func (e Event) MetadataText() (string, error) {
	if e.Attributes == nil {
		return "{}", nil
	}
	b, err := json.Marshal(e.Attributes)
	if err != nil {
		return "", fmt.Errorf("marshal metadata for producer %d: %w", e.ProducerID, err)
	}
	return string(b), nil
}

// Sink durably writes one batch. It is called from a single drain loop,
// never concurrently.
type Sink interface {
	WriteBatch(ctx context.Context, batch []Event) error
}

// DeadLetter receives batches the sink failed to persist.
type DeadLetter interface {
	Publish(ctx context.Context, batch []Event, cause error) error
}
