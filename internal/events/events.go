package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

const (
	EventBookingCreated        = "booking_created"
	EventBookingRented         = "booking_rented"
	EventVerificationCompleted = "verification_completed"
	EventCheckoutFailed        = "checkout_failed"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// BookingEventPayload is the booking snapshot sent to event consumers.
type BookingEventPayload struct {
	BookingID  string     `json:"booking_id"`
	CarID      string     `json:"car_id"`
	CarName    string     `json:"car_name"`
	PickupDate string     `json:"pickup_date"`
	ReturnDate string     `json:"return_date"`
	Location   string     `json:"location"`
	TotalPrice float64    `json:"total_price"`
	Status     string     `json:"status"`
	Account    string     `json:"account"`
	CodeSource string     `json:"code_source,omitempty"`
	TxHash     string     `json:"tx_hash,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	RentedAt   *time.Time `json:"rented_at,omitempty"`
}

// SessionEventPayload describes how a verification or checkout session ended.
type SessionEventPayload struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Account   string `json:"account"`
	Status    string `json:"status"`
	Outcome   string `json:"outcome,omitempty"`
	Error     string `json:"error,omitempty"`
	TxHash    string `json:"tx_hash,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

type subscription struct {
	id      uint64
	handler EventHandler
}

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]subscription
	mu          sync.RWMutex
	nextID      atomic.Uint64
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]subscription)}
}

// Subscribe registers a handler for an event type, or AllEvents. The
// returned func removes the handler; calling it twice is a no-op.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) (unsubscribe func()) {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subscribers[eventType]
			for i, s := range subs {
				if s.id == id {
					b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(b.subscribers[eventType]) == 0 {
				delete(b.subscribers, eventType)
			}
		})
	}
}

// Publish notifies subscribers of the event type, then AllEvents subscribers.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers[event.Type])+len(b.subscribers[AllEvents]))
	for _, s := range b.subscribers[event.Type] {
		handlers = append(handlers, s.handler)
	}
	for _, s := range b.subscribers[AllEvents] {
		handlers = append(handlers, s.handler)
	}
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
