package queue

import (
	"firehose/internal/domain/event"
)

// Queue is a fixed-capacity FIFO of pending events. Enqueue and dequeue
// never block; a full queue refuses the event and says so.
type Queue struct {
	ch chan event.Event
}

func New(capacity int) *Queue {
	if capacity <= 0 {
		panic("queue: capacity must be positive")
	}
	return &Queue{ch: make(chan event.Event, capacity)}
}

// TryEnqueue appends e and reports whether it fit.
func (q *Queue) TryEnqueue(e event.Event) bool {
	select {
	case q.ch <- e:
		return true
	default:
		return false
	}
}

// TryDequeue removes the oldest event, or returns false if the queue is empty.
func (q *Queue) TryDequeue() (event.Event, bool) {
	select {
	case e := <-q.ch:
		return e, true
	default:
		return event.Event{}, false
	}
}

func (q *Queue) Len() int { return len(q.ch) }

func (q *Queue) Cap() int { return cap(q.ch) }
