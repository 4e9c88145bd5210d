package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-memory Queue with the same at-least-once semantics as
// the Redis implementation. It exists so components can be exercised in
// tests without a broker.
type MemoryQueue struct {
	mu         sync.Mutex
	ready      []Message
	inflight   map[string]inflightEntry
	visibility time.Duration
	notify     chan struct{}
}

type inflightEntry struct {
	msg      Message
	deadline time.Time
}

// NewMemoryQueue creates an in-memory queue with the given visibility timeout.
func NewMemoryQueue(visibility time.Duration) *MemoryQueue {
	return &MemoryQueue{
		inflight:   make(map[string]inflightEntry),
		visibility: visibility,
		notify:     make(chan struct{}, 1),
	}
}

// Publish enqueues a message body.
func (q *MemoryQueue) Publish(_ context.Context, body []byte) error {
	q.mu.Lock()
	q.ready = append(q.ready, Message{ID: uuid.NewString(), Body: body})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Receive returns up to max messages, blocking up to wait for the first one.
func (q *MemoryQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Delivery, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		deliveries := q.take(max)
		if len(deliveries) > 0 {
			return deliveries, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		case <-time.After(remaining):
			return nil, nil
		}
	}
}

func (q *MemoryQueue) take(max int) []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.requeueExpiredLocked()

	var deliveries []Delivery
	for len(q.ready) > 0 && len(deliveries) < max {
		msg := q.ready[0]
		q.ready = q.ready[1:]
		receipt := uuid.NewString()
		q.inflight[receipt] = inflightEntry{msg: msg, deadline: time.Now().Add(q.visibility)}
		deliveries = append(deliveries, Delivery{Message: msg, ReceiptHandle: receipt})
	}
	return deliveries
}

// Delete removes a received message. A stale receipt handle is a no-op.
func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, receiptHandle)
	return nil
}

// Redeliver forces every in-flight message back onto the ready list, as if
// its visibility timeout had expired. Intended for tests.
func (q *MemoryQueue) Redeliver() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for receipt, entry := range q.inflight {
		q.ready = append(q.ready, entry.msg)
		delete(q.inflight, receipt)
	}
}

// Len returns the number of immediately deliverable messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requeueExpiredLocked()
	return len(q.ready)
}

func (q *MemoryQueue) requeueExpiredLocked() {
	now := time.Now()
	for receipt, entry := range q.inflight {
		if now.After(entry.deadline) {
			q.ready = append(q.ready, entry.msg)
			delete(q.inflight, receipt)
		}
	}
}
