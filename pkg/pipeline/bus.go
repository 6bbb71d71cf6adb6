package pipeline

import (
	"context"
	"log"
	"sync"
	"time"
)

// EventType identifies the kind of event published on the bus.
type EventType int

const (
	// EventError reports a recoverable error (transient per-tick failures).
	EventError EventType = iota
	// EventWarning reports a condition worth surfacing but not failing on.
	EventWarning
	// EventStateChange reports a coordinator lifecycle transition.
	EventStateChange
	// EventFeature reports a published feature frame.
	EventFeature
	// EventSourceClosed reports that the audio source has stopped delivering.
	EventSourceClosed
)

// Event is a single bus event.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// StateChangePayload describes a coordinator state transition.
type StateChangePayload struct {
	From string
	To   string
}

// Bus is a publish/subscribe event channel shared by the elements of a
// pipeline. Subscribers receive events on their own channels; delivery is
// non-blocking, a subscriber that cannot keep up loses events.
type Bus interface {
	Subscribe(eventType EventType, ch chan Event)
	Unsubscribe(eventType EventType, ch chan Event)
	Publish(event Event)
	Start(ctx context.Context)
	Stop()
}

type eventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
}

// NewEventBus creates an empty event bus.
func NewEventBus() Bus {
	return &eventBus{
		subscribers: make(map[EventType][]chan Event),
	}
}

func (b *eventBus) Subscribe(eventType EventType, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
}

func (b *eventBus) Unsubscribe(eventType EventType, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *eventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			log.Printf("[EventBus] subscriber channel full, dropping event type %d", event.Type)
		}
	}
}

func (b *eventBus) Start(ctx context.Context) {
	// Delivery is synchronous; nothing to arm.
}

func (b *eventBus) Stop() {}
