package checkout

import (
	"net/mail"
	"strings"

	"github.com/ariefcatur/go-tradein-orders/internal/apperr"
	"github.com/ariefcatur/go-tradein-orders/internal/orders"
)

const currencyAUD = "AUD"

type CartItem struct {
	InventoryID string `json:"inventoryId"`
}

type UpsellSelection struct {
	UpsellID string `json:"upsellId"`
	Quantity int    `json:"quantity"`
}

type Request struct {
	Items           []CartItem        `json:"items"`
	UpsellItems     []UpsellSelection `json:"upsellItems,omitempty"`
	CustomerName    string            `json:"customerName"`
	CustomerEmail   string            `json:"customerEmail"`
	CustomerPhone   string            `json:"customerPhone,omitempty"`
	ShippingAddress orders.Address    `json:"shippingAddress"`
	Currency        string            `json:"currency,omitempty"`
}

// normalize validates the request and returns the item ids, the upsell
// selections with quantities defaulted, and the customer.
func (r Request) normalize() ([]string, []UpsellSelection, orders.Customer, error) {
	var none orders.Customer
	if len(r.Items) == 0 && len(r.UpsellItems) == 0 {
		return nil, nil, none, apperr.Validation("cart is empty")
	}

	cust := orders.Customer{
		Name:  strings.TrimSpace(r.CustomerName),
		Email: strings.TrimSpace(r.CustomerEmail),
		Phone: strings.TrimSpace(r.CustomerPhone),
	}
	if cust.Name == "" {
		return nil, nil, none, apperr.Validation("customerName is required")
	}
	if cust.Email == "" {
		return nil, nil, none, apperr.Validation("customerEmail is required")
	}
	if _, err := mail.ParseAddress(cust.Email); err != nil {
		return nil, nil, none, apperr.Validation("customerEmail %q is not a valid address", cust.Email)
	}

	a := r.ShippingAddress
	for _, f := range []struct{ name, v string }{
		{"line1", a.Line1}, {"city", a.City}, {"region", a.Region}, {"postcode", a.Postcode}, {"country", a.Country},
	} {
		if strings.TrimSpace(f.v) == "" {
			return nil, nil, none, apperr.Validation("shippingAddress.%s is required", f.name)
		}
	}

	if c := strings.ToUpper(strings.TrimSpace(r.Currency)); c != "" && c != currencyAUD {
		return nil, nil, none, apperr.Validation("currency %q is not supported", r.Currency)
	}

	ids := make([]string, 0, len(r.Items))
	seen := map[string]bool{}
	for _, it := range r.Items {
		id := strings.TrimSpace(it.InventoryID)
		if id == "" {
			return nil, nil, none, apperr.Validation("items[].inventoryId is required")
		}
		if seen[id] {
			return nil, nil, none, apperr.Validation("item %s appears more than once", id)
		}
		seen[id] = true
		ids = append(ids, id)
	}

	ups := make([]UpsellSelection, 0, len(r.UpsellItems))
	seenUp := map[string]bool{}
	for _, u := range r.UpsellItems {
		u.UpsellID = strings.TrimSpace(u.UpsellID)
		switch {
		case u.UpsellID == "":
			return nil, nil, none, apperr.Validation("upsellItems[].upsellId is required")
		case u.Quantity < 0:
			return nil, nil, none, apperr.Validation("upsell %s quantity must not be negative", u.UpsellID)
		case seenUp[u.UpsellID]:
			return nil, nil, none, apperr.Validation("upsell %s appears more than once", u.UpsellID)
		}
		if u.Quantity == 0 {
			u.Quantity = 1
		}
		seenUp[u.UpsellID] = true
		ups = append(ups, u)
	}
	return ids, ups, cust, nil
}
