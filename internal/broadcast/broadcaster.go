package broadcast

import (
	"callgist/internal/observability"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types fanned out to subscribers of a call or session id.
const (
	EventStatusChanged      = "status_changed"
	EventTranscriptReady    = "transcript_ready"
	EventSummaryReady       = "summary_ready"
	EventProcessingProgress = "processing_progress"
)

// subscriberBuffer bounds each subscriber channel. Delivery is best-effort:
// a full buffer drops the event rather than blocking the publisher.
const subscriberBuffer = 16

// Event is a single notification about a call or session
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	CallID    string                 `json:"call_id"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Subscriber receives events for a single call id until unsubscribed or the
// topic is closed
type Subscriber struct {
	ch     chan Event
	closed bool
}

// Events returns the subscriber's receive channel. It is closed when the
// subscriber is unsubscribed or the call reaches a terminal state.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Broadcaster fans out per-call events to in-process subscribers. Topics are
// created on first subscribe and torn down when the last subscriber leaves or
// the call reaches a terminal state. Subscribers connecting after an event was
// published never receive it retroactively.
type Broadcaster struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscriber]struct{}
	logger *observability.Logger
}

// New creates a new event broadcaster
func New(logger *observability.Logger) *Broadcaster {
	return &Broadcaster{
		topics: make(map[string]map[*Subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new subscriber for the given call id
func (b *Broadcaster) Subscribe(callID string) *Subscriber {
	sub := &Subscriber{ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[callID] == nil {
		b.topics[callID] = make(map[*Subscriber]struct{})
	}
	b.topics[callID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscriber and tears down the topic when it was the
// last one
func (b *Broadcaster) Unsubscribe(callID string, sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[callID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
	if len(subs) == 0 {
		delete(b.topics, callID)
	}
}

// Publish fans an event out to all current subscribers of the call id.
// Delivery is at-most-once per subscriber: slow subscribers lose events.
func (b *Broadcaster) Publish(ctx context.Context, callID, eventType string, data map[string]interface{}) {
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		CallID:    callID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.topics[callID] {
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn(observability.WithFields(ctx,
				observability.Field{Key: "call_id", Value: callID},
				observability.Field{Key: "event_type", Value: eventType}),
				"subscriber buffer full, dropping event")
		}
	}
}

// CloseTopic closes all subscribers for a call id and removes the topic. Used
// when processing reaches a terminal state.
func (b *Broadcaster) CloseTopic(callID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[callID]
	if !ok {
		return
	}
	for sub := range subs {
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	delete(b.topics, callID)
}

// SubscriberCount reports the number of active subscribers for a call id
func (b *Broadcaster) SubscriberCount(callID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[callID])
}
