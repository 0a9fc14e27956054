package events

import (
	"encoding/json"
	"testing"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	bus.Subscribe(EventBookingCreated, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	err := bus.PublishJSON(EventBookingCreated, BookingEventPayload{BookingID: "BK0123"})
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
	if received.Type != EventBookingCreated {
		t.Errorf("expected type %s, got %s", EventBookingCreated, received.Type)
	}

	var decoded BookingEventPayload
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if decoded.BookingID != "BK0123" {
		t.Errorf("expected BK0123, got %s", decoded.BookingID)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	unsub1 := bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	bus.Publish(&Event{Type: "event"})
	unsub1()
	unsub1()
	bus.Publish(&Event{Type: "event"})

	if count1 != 1 {
		t.Errorf("unsubscribed handler called %d times, want 1", count1)
	}
	if count2 != 2 {
		t.Errorf("remaining handler called %d times, want 2", count2)
	}
}

func TestEventBusAllEvents(t *testing.T) {
	bus := NewEventBus()
	var types []string
	unsub := bus.Subscribe(AllEvents, func(e *Event) error {
		types = append(types, e.Type)
		return nil
	})

	bus.Publish(&Event{Type: EventBookingCreated})
	bus.Publish(&Event{Type: EventCheckoutFailed})
	unsub()
	bus.Publish(&Event{Type: EventBookingRented})

	if len(types) != 2 || types[0] != EventBookingCreated || types[1] != EventCheckoutFailed {
		t.Errorf("unexpected events %v", types)
	}
	if _, ok := bus.subscribers[AllEvents]; ok {
		t.Errorf("expected empty subscriber list to be removed")
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	bus.Publish(&Event{Type: "unknown"})
	if err := bus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}

	var nilBus *EventBus
	if err := nilBus.PublishJSON("x", 1); err != nil {
		t.Errorf("nil bus should be a no-op, got %v", err)
	}
}

func TestNewJSONEvent(t *testing.T) {
	event, err := NewJSONEvent("type", SessionEventPayload{SessionID: "s1"})
	if err != nil {
		t.Fatalf("NewJSONEvent failed: %v", err)
	}
	if event.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be set")
	}

	var decoded SessionEventPayload
	if err := json.Unmarshal(event.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if decoded.SessionID != "s1" {
		t.Errorf("expected s1, got %s", decoded.SessionID)
	}
}
