// Package notify provides publish/subscribe topics that fan out to work
// queues. Payloads travel wrapped in an envelope carrying a message type, so
// consumers can tell data notifications apart from subscription-confirmation
// control messages and acknowledge the latter against the bus.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glacierlabs/floe/internal/logger"
	"github.com/glacierlabs/floe/internal/queue"
)

// Envelope types
const (
	// TypeNotification marks a data notification
	TypeNotification = "Notification"
	// TypeSubscriptionConfirmation marks a control message that must be
	// confirmed against the bus before the subscription is active
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
)

// Envelope wraps every message published through a topic.
type Envelope struct {
	Type      string `json:"Type"`
	TopicArn  string `json:"TopicArn,omitempty"`
	Token     string `json:"Token,omitempty"`
	MessageID string `json:"MessageId,omitempty"`
	Message   string `json:"Message,omitempty"`
	Timestamp string `json:"Timestamp,omitempty"`
}

// DecodeEnvelope parses an envelope from a raw queue message body.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return env, nil
}

// Payload unmarshals the envelope's data payload into v.
func (e Envelope) Payload(v interface{}) error {
	if e.Type != TypeNotification {
		return fmt.Errorf("envelope is not a notification: %s", e.Type)
	}
	return json.Unmarshal([]byte(e.Message), v)
}

// Bus holds the topics and tracks subscription confirmations.
type Bus struct {
	mu        sync.Mutex
	topics    map[string]*Topic
	confirmed map[string]bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		topics:    make(map[string]*Topic),
		confirmed: make(map[string]bool),
	}
}

// Topic returns the named topic, creating it on first use.
func (b *Bus) Topic(name string) *Topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[name]; ok {
		return t
	}
	t := &Topic{
		bus:  b,
		name: name,
		arn:  "arn:floe:notify:" + name,
	}
	b.topics[name] = t
	return t
}

// ConfirmSubscription acknowledges a subscription-confirmation control
// message for the given topic ARN.
func (b *Bus) ConfirmSubscription(_ context.Context, topicARN, token string) error {
	if token == "" {
		return fmt.Errorf("confirmation token is required")
	}
	b.mu.Lock()
	b.confirmed[topicARN] = true
	b.mu.Unlock()
	logger.Infof("Confirmed subscription for %s", topicARN)
	return nil
}

// Confirmed reports whether a subscription confirmation was acknowledged
// for the topic ARN.
func (b *Bus) Confirmed(topicARN string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.confirmed[topicARN]
}

// Topic fans published payloads out to its subscribed queues.
type Topic struct {
	bus  *Bus
	name string
	arn  string

	mu   sync.Mutex
	subs []queue.Queue
}

// ARN returns the topic's identifier as carried in envelopes.
func (t *Topic) ARN() string {
	return t.arn
}

// Subscribe attaches a queue to the topic and enqueues the
// subscription-confirmation control message for it.
func (t *Topic) Subscribe(ctx context.Context, q queue.Queue) error {
	t.mu.Lock()
	t.subs = append(t.subs, q)
	t.mu.Unlock()

	raw, err := json.Marshal(Envelope{
		Type:     TypeSubscriptionConfirmation,
		TopicArn: t.arn,
		Token:    uuid.NewString(),
	})
	if err != nil {
		return err
	}
	return q.Publish(ctx, raw)
}

// AttachQueue attaches a queue to the topic without enqueueing a
// subscription-confirmation message, for processes joining a subscription
// that is already established.
func (t *Topic) AttachQueue(q queue.Queue) {
	t.mu.Lock()
	t.subs = append(t.subs, q)
	t.mu.Unlock()
}

// Publish wraps the payload in a notification envelope and delivers it to
// every subscribed queue.
func (t *Topic) Publish(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	raw, err := json.Marshal(Envelope{
		Type:      TypeNotification,
		TopicArn:  t.arn,
		MessageID: uuid.NewString(),
		Message:   string(body),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	subs := make([]queue.Queue, len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, q := range subs {
		if err := q.Publish(ctx, raw); err != nil {
			return fmt.Errorf("failed to publish to subscriber of %s: %w", t.name, err)
		}
	}
	return nil
}
