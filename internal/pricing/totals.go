package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var gstDivisor = decimal.NewFromInt(11)

// RateTable maps an item category to the flat shipping fee for an order.
type RateTable struct {
	Rates         map[string]decimal.Decimal
	DefaultRate   decimal.Decimal
	FreeThreshold decimal.Decimal // zero disables free shipping
}

// Rate returns the configured rate for category, or DefaultRate if none is set.
func (t RateTable) Rate(category string) decimal.Decimal {
	if r, ok := t.Rates[category]; ok {
		return r
	}
	return t.DefaultRate
}

type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	GST      decimal.Decimal
	Total    decimal.Decimal
}

// Shipping charges one fee per order: the highest rate among the cart's categories.
func Shipping(categories []string, subtotal decimal.Decimal, table RateTable) decimal.Decimal {
	if len(categories) == 0 {
		return decimal.Zero
	}
	if table.FreeThreshold.IsPositive() && subtotal.GreaterThanOrEqual(table.FreeThreshold) {
		return decimal.Zero
	}
	max := table.Rate(categories[0])
	for _, c := range categories[1:] {
		if r := table.Rate(c); r.GreaterThan(max) {
			max = r
		}
	}
	return Round(max)
}

// Compute derives all order totals. GST is the tax component of the
// GST-inclusive total and is not added to it.
func Compute(categories []string, subtotal decimal.Decimal, table RateTable) Totals {
	subtotal = Round(subtotal)
	shipping := Shipping(categories, subtotal, table)
	total := Round(subtotal.Add(shipping))
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		GST:      GST(total),
		Total:    total,
	}
}

func GST(total decimal.Decimal) decimal.Decimal {
	return Round(total.Div(gstDivisor))
}

// Round rounds half away from zero to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ParseRates parses "Phone:10,Tablet:15" into a rate map.
func ParseRates(s string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("shipping rate %q: want category:rate", part)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("shipping rate %q: %w", part, err)
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("shipping rate %q: negative", part)
		}
		out[strings.TrimSpace(name)] = d
	}
	return out, nil
}
