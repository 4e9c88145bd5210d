// Package queue provides at-least-once work queues with bounded long-poll
// receives, per-delivery receipt handles, and visibility-timeout redelivery.
//
// Consumers must tolerate duplicate and out-of-order delivery: a message is
// redelivered whenever it is not deleted within the visibility timeout.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Message is the unit of work carried by a queue.
type Message struct {
	ID   string `json:"id"`
	Body []byte `json:"body"`
}

// Delivery is a received message plus the opaque receipt handle used to
// delete it. The same message can be delivered more than once, each time
// with a fresh receipt handle.
type Delivery struct {
	Message
	ReceiptHandle string
}

// Queue is an at-least-once delivery queue.
type Queue interface {
	// Publish enqueues a message body.
	Publish(ctx context.Context, body []byte) error

	// Receive returns up to max messages, blocking up to wait for the first
	// one. Received messages become invisible for the visibility timeout;
	// messages not deleted in time are redelivered.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Delivery, error)

	// Delete removes a received message using its receipt handle. Deleting
	// with a stale handle (already deleted, or redelivered meanwhile) is
	// not an error.
	Delete(ctx context.Context, receiptHandle string) error
}

func encodeMessage(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func decodeMessage(raw []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(raw, &m)
	return m, err
}
