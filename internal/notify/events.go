package notify

import (
	"context"
	"encoding/json"
	"time"
)

type EventType string

const (
	OrderPlaced           EventType = "OrderPlaced"
	OrderConfirmed        EventType = "OrderConfirmed"
	OrderCancelled        EventType = "OrderCancelled"
	OrderShipped          EventType = "OrderShipped"
	OrderDelivered        EventType = "OrderDelivered"
	OrderRefunded         EventType = "OrderRefunded"
	PaymentFailed         EventType = "PaymentFailed"
	PaymentRequiresRefund EventType = "PaymentRequiresRefund"
)

const TopicNotifications = "marketplace.notifications"

// Event is the abstract notification handed to the dispatcher. Delivery
// channel and retry policy are the dispatcher's business.
type Event struct {
	Type       EventType      `json:"type"`
	OrderID    string         `json:"order_id"`
	UserID     string         `json:"user_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func NewEvent(t EventType, orderID, userID string, payload map[string]any) Event {
	return Event{Type: t, OrderID: orderID, UserID: userID, Payload: payload, OccurredAt: time.Now().UTC()}
}

// Envelope wraps every event written to Kafka.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// Dispatcher is fire-and-forget: it must not block the caller on delivery
// and its failures never affect order, payment or stock state.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Event)
}

type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, e Event) {
	for _, d := range m {
		if d != nil {
			d.Dispatch(ctx, e)
		}
	}
}

type Nop struct{}

func (Nop) Dispatch(context.Context, Event) {}
