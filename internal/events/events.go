package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventBookingCreated       = "booking_created"
	EventPaymentConfirmed     = "payment_confirmed"
	EventBookingCancelled     = "booking_cancelled"
	EventParticipantCancelled = "participant_cancelled"
	EventParticipantRestored  = "participant_restored"
	EventBookingCompleted     = "booking_completed"
	EventBookingArchived      = "booking_archived"
	EventRefundFailed         = "refund_failed"
)

// BookingEventPayload is the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID     int64     `json:"booking_id"`
	UserID        int64     `json:"user_id"`
	TrekID        int64     `json:"trek_id"`
	BatchID       int64     `json:"batch_id"`
	Status        string    `json:"status"`
	Participants  int       `json:"participants"`
	TotalPrice    int64     `json:"total_price"`
	RefundAmount  int64     `json:"refund_amount,omitempty"`
	ParticipantID int64     `json:"participant_id,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
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

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// AllEventTypes lists every booking event the bus carries.
var AllEventTypes = []string{
	EventBookingCreated,
	EventPaymentConfirmed,
	EventBookingCancelled,
	EventParticipantCancelled,
	EventParticipantRestored,
	EventBookingCompleted,
	EventBookingArchived,
	EventRefundFailed,
}

// RegisterLogging subscribes a structured event log to every event type.
func RegisterLogging(bus *EventBus, logger *zerolog.Logger) {
	audit := logger.With().Str("component", "events").Logger()
	handler := func(event *Event) error {
		audit.Info().
			Str("event", event.Type).
			RawJSON("payload", event.Payload).
			Msg("booking event")
		return nil
	}
	for _, eventType := range AllEventTypes {
		bus.Subscribe(eventType, handler)
	}
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
