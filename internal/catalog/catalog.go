// Package catalog holds the read side of the device and upsell catalogs that
// checkout snapshots into orders. Editing the catalog happens elsewhere.
package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Device struct {
	Ref      string `json:"ref"`
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Storage  string `json:"storage,omitempty"`
	Category string `json:"category"`
}

// Title renders "Apple iPhone 13 128GB".
func (d Device) Title() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{d.Brand, d.Model, d.Storage} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

type Upsell struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	PriceAUD decimal.Decimal `json:"priceAUD"`
	Active   bool            `json:"active"`
}
