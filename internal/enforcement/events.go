package enforcement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType identifies a subscription lifecycle transition.
type EventType string

const (
	EventSubscriptionActivated EventType = "subscription_activated"
	EventSubscriptionResumed   EventType = "subscription_resumed"
	EventSubscriptionSuspended EventType = "subscription_suspended"
	EventSubscriptionCanceled  EventType = "subscription_canceled"
	EventProfileChanged        EventType = "subscription_profile_changed"
	EventSubscriberThrottled   EventType = "subscriber_throttled"
	EventUsageExhausted        EventType = "usage_exhausted"
)

// Event is one lifecycle notification. Reason carries the trigger
// context, e.g. "fup_exhausted" for usage-driven suspensions.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	SubscriptionID uint      `json:"subscription_id"`
	SubscriberID   uint      `json:"subscriber_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(eventType EventType, subscriptionID uint) Event {
	return Event{
		ID:             uuid.New().String(),
		Type:           eventType,
		SubscriptionID: subscriptionID,
		OccurredAt:     time.Now().UTC(),
	}
}

// EventHandler consumes one event. Handlers are responsible for their
// own fault tolerance; a returned error is logged, not retried.
type EventHandler func(ctx context.Context, event Event) error

// Dispatcher fans events out to subscribed handlers synchronously, in
// subscription order.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler
	log      *zap.Logger
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[EventType][]EventHandler),
		log:      log,
	}
}

// Subscribe registers a handler for an event type.
func (d *Dispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// Dispatch delivers the event to every subscribed handler. Handler
// errors are logged and do not stop delivery to later handlers.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	d.mu.RLock()
	handlers := d.handlers[event.Type]
	d.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			d.log.Error("event handler failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Uint("subscription_id", event.SubscriptionID),
				zap.Error(err))
		}
	}
}
