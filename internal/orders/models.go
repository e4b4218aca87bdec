package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrAlreadyPaid       = errors.New("order already paid")
	ErrInvalidTransition = errors.New("order: invalid status transition")
)

// Line is a frozen copy of an inventory item taken at reservation time.
type Line struct {
	ItemID      string          `json:"itemId"`
	InventoryID int64           `json:"inventoryId"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	PriceAUD    decimal.Decimal `json:"priceAUD"`
}

type UpsellLine struct {
	UpsellID string          `json:"upsellId"`
	Name     string          `json:"name"`
	PriceAUD decimal.Decimal `json:"priceAUD"`
	Quantity int             `json:"quantity"`
}

func (u UpsellLine) Amount() decimal.Decimal {
	return u.PriceAUD.Mul(decimal.NewFromInt(int64(u.Quantity)))
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type Address struct {
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Postcode string `json:"postcode"`
	Country  string `json:"country"`
}

type Order struct {
	ID              string       `json:"id"`
	OrderNumber     int64        `json:"orderNumber"`
	Items           []Line       `json:"items"`
	UpsellItems     []UpsellLine `json:"upsellItems"`
	Customer        Customer     `json:"customer"`
	ShippingAddress Address      `json:"shippingAddress"`
	Currency        string       `json:"currency"`

	SubtotalAUD decimal.Decimal `json:"subtotalAUD"`
	ShippingAUD decimal.Decimal `json:"shippingAUD"`
	GSTAUD      decimal.Decimal `json:"gstAUD"`
	TotalAUD    decimal.Decimal `json:"totalAUD"`

	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	PaymentMode   PaymentMode   `json:"paymentMode,omitempty"`

	ProcessorSessionID string `json:"processorSessionId,omitempty"`
	ProcessorReference string `json:"processorReference,omitempty"`
	CancelReason       string `json:"cancelReason,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
}

func (o *Order) IsPaid() bool { return o.PaymentStatus == PaymentPaid }

// ItemIDs lists the inventory documents the order holds.
func (o *Order) ItemIDs() []string {
	out := make([]string, 0, len(o.Items))
	for _, l := range o.Items {
		out = append(out, l.ItemID)
	}
	return out
}

// AttachSession records the processor checkout session. Paid orders are immutable.
func (o *Order) AttachSession(sessionID string, now time.Time) error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, o.ID, o.Status)
	}
	o.ProcessorSessionID = sessionID
	o.PaymentMode = ModeProcessor
	o.UpdatedAt = now
	return nil
}

func (o *Order) MarkPaid(mode PaymentMode, reference string, now time.Time) error {
	if o.IsPaid() {
		return ErrAlreadyPaid
	}
	if !CanTransition(o.Status, StatusPaid) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusPaid)
	}
	o.Status = StatusPaid
	o.PaymentStatus = PaymentPaid
	o.PaymentMode = mode
	if reference != "" {
		o.ProcessorReference = reference
	}
	o.PaidAt = &now
	o.UpdatedAt = now
	return nil
}

func (o *Order) Cancel(reason string, now time.Time) error {
	if !CanTransition(o.Status, StatusCancelled) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusCancelled)
	}
	o.Status = StatusCancelled
	o.CancelReason = reason
	o.UpdatedAt = now
	return nil
}
