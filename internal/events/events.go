package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderReserved     = "OrderReserved"
	EventOrderPaid         = "OrderPaid"
	EventOrderCancelled    = "OrderCancelled"
	EventItemReturned      = "ItemReturned"
	EventPaymentCompleted  = "PaymentCompleted"
	CurrentEnvelopeVersion = 1
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// New wraps payload in a v1 envelope correlated to orderID.
func New(eventType, producer, orderID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  CurrentEnvelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

// Decode unwraps a typed payload.
func Decode[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}

// Publisher delivers envelopes after the state they describe has committed.
type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, Envelope) error { return nil }

// Nop discards every event; used when no broker is configured.
func Nop() Publisher { return nopPublisher{} }

// ---- payloads ----

type LinePayload struct {
	ItemID      string `json:"item_id"`
	InventoryID int64  `json:"inventory_id"`
	PriceAUD    string `json:"price_aud"`
}

type OrderReservedPayload struct {
	OrderID     string        `json:"order_id"`
	OrderNumber int64         `json:"order_number"`
	Items       []LinePayload `json:"items"`
	TotalAUD    string        `json:"total_aud"`
}

type OrderPaidPayload struct {
	OrderID            string `json:"order_id"`
	OrderNumber        int64  `json:"order_number"`
	PaymentMode        string `json:"payment_mode"`
	ProcessorReference string `json:"processor_reference,omitempty"`
	TotalAUD           string `json:"total_aud"`
}

type OrderCancelledPayload struct {
	OrderID string   `json:"order_id"`
	Reason  string   `json:"reason"`
	ItemIDs []string `json:"item_ids"`
}

type ItemReturnedPayload struct {
	ItemID      string `json:"item_id"`
	InventoryID int64  `json:"inventory_id"`
	OrderID     string `json:"order_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Grade       string `json:"grade"`
}

// PaymentCompletedPayload is consumed, not produced: a payment relay publishes
// processor completions to TopicPaymentCompleted.
type PaymentCompletedPayload struct {
	OrderID            string `json:"order_id"`
	ProcessorReference string `json:"processor_reference"`
}
