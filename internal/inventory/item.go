package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotListed    = errors.New("inventory: item is not listed")
	ErrNotReserved  = errors.New("inventory: item is not reserved by this order")
	ErrNotSold      = errors.New("inventory: item is not sold")
	ErrInvalidState = errors.New("inventory: invalid state transition")
)

// Item is a single physical unit. Listed is true exactly when Status is listed.
type Item struct {
	ID            string              `json:"id"`
	InventoryID   int64               `json:"inventoryId"`
	Serial        string              `json:"serial"`
	DeviceRef     string              `json:"deviceRef"`
	Category      string              `json:"category"`
	CosmeticGrade string              `json:"cosmeticGrade"`
	CostNZD       decimal.Decimal     `json:"costNZD"`
	CostAUD       decimal.Decimal     `json:"costAUD"`
	SellPriceAUD  decimal.Decimal     `json:"sellPriceAUD"`
	SellPriceNZD  decimal.NullDecimal `json:"sellPriceNZD"`
	Location      string              `json:"location,omitempty"`
	Images        []string            `json:"images"`

	Status        Status     `json:"status"`
	Listed        bool       `json:"listed"`
	SourceType    SourceType `json:"sourceType"`
	SourceQuoteID string     `json:"sourceQuoteId,omitempty"`

	// OrderID is the order holding or having bought the unit.
	OrderID    string      `json:"orderId,omitempty"`
	ReservedAt *time.Time  `json:"reservedAt,omitempty"`
	SoldAt     *time.Time  `json:"soldAt,omitempty"`
	Return     *ReturnInfo `json:"return,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ReturnInfo struct {
	Reason     string    `json:"reason,omitempty"`
	OrderID    string    `json:"orderId,omitempty"`
	PriorGrade string    `json:"priorGrade,omitempty"`
	ReturnedAt time.Time `json:"returnedAt"`
}

// NormalizeSerial is the case-insensitive key serial uniqueness is enforced on.
func NormalizeSerial(serial string) string {
	return strings.ToLower(strings.TrimSpace(serial))
}

// Purchasable reports whether checkout may reserve the item.
func (it *Item) Purchasable() bool {
	return it.Status == StatusListed && it.Listed
}

// Reserve holds the item for orderID.
func (it *Item) Reserve(orderID string, now time.Time) error {
	if !it.Purchasable() {
		return fmt.Errorf("%w: %s is %s", ErrNotListed, it.ID, it.Status)
	}
	it.set(StatusReserved, now)
	it.OrderID = orderID
	it.ReservedAt = &now
	return nil
}

// Sell finalizes a reservation. Only the reserving order may sell the unit.
func (it *Item) Sell(orderID string, now time.Time) error {
	if it.Status != StatusReserved || it.OrderID != orderID {
		return fmt.Errorf("%w: %s is %s (order %q)", ErrNotReserved, it.ID, it.Status, it.OrderID)
	}
	it.set(StatusSold, now)
	it.SoldAt = &now
	return nil
}

// Release returns an abandoned reservation to the listed pool.
func (it *Item) Release(orderID string, now time.Time) error {
	if it.Status != StatusReserved || it.OrderID != orderID {
		return fmt.Errorf("%w: %s is %s (order %q)", ErrNotReserved, it.ID, it.Status, it.OrderID)
	}
	it.set(StatusListed, now)
	it.OrderID = ""
	it.ReservedAt = nil
	return nil
}

// MarkReturned re-admits a sold unit to the receive pipeline.
func (it *Item) MarkReturned(reason, orderID, newGrade string, now time.Time) error {
	if it.Status != StatusSold {
		return fmt.Errorf("%w: %s is %s", ErrNotSold, it.ID, it.Status)
	}
	switch {
	case orderID == "":
		orderID = it.OrderID
	case it.OrderID != "" && orderID != it.OrderID:
		return fmt.Errorf("%w: %s was sold by order %s, not %s", ErrInvalidState, it.ID, it.OrderID, orderID)
	}
	info := &ReturnInfo{Reason: reason, OrderID: orderID, ReturnedAt: now}
	if newGrade != "" {
		info.PriorGrade = it.CosmeticGrade
		it.CosmeticGrade = newGrade
	}
	it.set(StatusReceived, now)
	it.SourceType = SourceReturn
	it.Return = info
	it.OrderID = ""
	it.ReservedAt = nil
	it.SoldAt = nil
	return nil
}

// Advance moves the item along the staff pipeline (received through listed).
func (it *Item) Advance(to Status, now time.Time) error {
	switch to {
	case StatusInspecting, StatusRefurbishing, StatusListed:
	default:
		return fmt.Errorf("%w: %s cannot be set directly", ErrInvalidState, to)
	}
	if it.Status == StatusReserved {
		return fmt.Errorf("%w: %s is reserved", ErrInvalidState, it.ID)
	}
	if !CanTransition(it.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, it.Status, to)
	}
	it.set(to, now)
	return nil
}

func (it *Item) set(s Status, now time.Time) {
	if !CanTransition(it.Status, s) {
		// callers validate first; reaching here means a new edge was added without a table entry
		panic(fmt.Sprintf("inventory: unchecked transition %s -> %s", it.Status, s))
	}
	it.Status = s
	it.Listed = s == StatusListed
	it.UpdatedAt = now
}

// Price returns the AUD sell price frozen into order lines.
func (it *Item) Price() decimal.Decimal {
	return it.SellPriceAUD
}
