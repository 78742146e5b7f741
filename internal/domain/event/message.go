package event

import (
	"time"
)

const TypeBatchFailed = "EventBatchFailed"

// Message is the envelope published to the dead-letter topic for a batch
// the sink could not persist.
type Message struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Producer   string    `json:"producer"`
	OccurredAt time.Time `json:"occurred_at"`
	Error      string    `json:"error"`
	Events     []Event   `json:"events"`
}
