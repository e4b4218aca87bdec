package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-tradein-orders/internal/orders"
)

// Processor creates hosted checkout sessions.
type Processor interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

type LineItem struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount"`
	Quantity    int    `json:"quantity"`
}

type SessionRequest struct {
	OrderID       string            `json:"client_reference_id"`
	CustomerEmail string            `json:"customer_email"`
	Currency      string            `json:"currency"`
	LineItems     []LineItem        `json:"line_items"`
	SuccessURL    string            `json:"success_url,omitempty"`
	CancelURL     string            `json:"cancel_url,omitempty"`
	Metadata      map[string]string `json:"metadata"`
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

var hundred = decimal.NewFromInt(100)

// Cents converts an AUD amount to integer minor units.
func Cents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// SessionFromOrder prices a session from the stored order, never the live cart.
// Shipping is its own line so the session total equals the order total.
func SessionFromOrder(o *orders.Order, cfg Config) SessionRequest {
	lines := make([]LineItem, 0, len(o.Items)+len(o.UpsellItems)+1)
	for _, l := range o.Items {
		lines = append(lines, LineItem{Name: l.Description, AmountCents: Cents(l.PriceAUD), Quantity: 1})
	}
	for _, u := range o.UpsellItems {
		lines = append(lines, LineItem{Name: u.Name, AmountCents: Cents(u.PriceAUD), Quantity: u.Quantity})
	}
	if o.ShippingAUD.IsPositive() {
		lines = append(lines, LineItem{Name: "Shipping", AmountCents: Cents(o.ShippingAUD), Quantity: 1})
	}
	return SessionRequest{
		OrderID:       o.ID,
		CustomerEmail: o.Customer.Email,
		Currency:      o.Currency,
		LineItems:     lines,
		SuccessURL:    cfg.SuccessURL,
		CancelURL:     cfg.CancelURL,
		Metadata: map[string]string{
			"orderId":     o.ID,
			"orderNumber": fmt.Sprint(o.OrderNumber),
		},
	}
}
