package session

import (
	"sync"

	"github.com/meszmate/filibuster/internal/core"
)

// EventType represents the type of event
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	EventConnectionError
	EventAuthenticationError
	EventContactChanged
	EventContactRemoved
	EventProfileUpdated
	EventPresenceChanged
	EventMessageReceived
	EventComposingReceived
)

// String returns a short name for logging.
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventConnectionError:
		return "connection-error"
	case EventAuthenticationError:
		return "authentication-error"
	case EventContactChanged:
		return "contact-changed"
	case EventContactRemoved:
		return "contact-removed"
	case EventProfileUpdated:
		return "profile-updated"
	case EventPresenceChanged:
		return "presence-changed"
	case EventMessageReceived:
		return "message-received"
	case EventComposingReceived:
		return "composing-received"
	default:
		return "unknown"
	}
}

// Event is a one-way notification to the renderer. Key identifies the
// contact it concerns (SelfKey for the local user's own profile);
// Body carries a received message text; Err carries the failure for
// connection or authentication errors; Degraded marks a session that
// became ready without a confirmed roster snapshot.
type Event struct {
	Type     EventType
	Key      core.Identity
	Body     string
	Err      error
	Degraded bool
}

// EventHandler is a function that handles events
type EventHandler func(event Event)

// EventBus handles event subscription and publishing. Dispatch is
// synchronous and in order: handlers run on the session's processing
// path and must not block.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler
	all      []EventHandler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe subscribes to an event type
func (b *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll subscribes to every event type
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish publishes an event to all subscribers
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[event.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]EventHandler)
	b.all = nil
}
