// Package store defines the transactional document store the reservation,
// reconciliation and return flows run on. Every mutation of items, orders and
// counters happens inside RunTx.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-tradein-orders/internal/catalog"
	"github.com/ariefcatur/go-tradein-orders/internal/inventory"
	"github.com/ariefcatur/go-tradein-orders/internal/orders"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrTxConflict reports that a document read by the transaction was changed
	// by another committed transaction. RunTx retries it.
	ErrTxConflict = errors.New("store: transaction conflict")
)

// Tx is one optimistic transaction. Reads join the read set; writes are
// buffered and become visible to other transactions only on commit.
type Tx interface {
	Item(ctx context.Context, id string) (*inventory.Item, error)
	// ItemBySerial looks a unit up by its case-insensitive serial.
	ItemBySerial(ctx context.Context, serial string) (*inventory.Item, error)
	PutItem(ctx context.Context, it *inventory.Item) error

	Order(ctx context.Context, id string) (*orders.Order, error)
	PutOrder(ctx context.Context, o *orders.Order) error

	Device(ctx context.Context, ref string) (*catalog.Device, error)
	Upsell(ctx context.Context, id string) (*catalog.Upsell, error)

	// NextSequence increments and returns the named counter. The increment
	// commits or aborts with the rest of the transaction.
	NextSequence(ctx context.Context, name string) (int64, error)
}

type TxFunc func(ctx context.Context, tx Tx) error

type Store interface {
	// RunTx runs fn in a transaction. An error returned by fn aborts without
	// retry; commit conflicts are retried per the store's Policy.
	RunTx(ctx context.Context, fn TxFunc) error
	// PendingOrdersBefore lists ids of unpaid, uncancelled orders created before cutoff.
	PendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Counter names.
const (
	SeqOrders    = "orders"
	SeqInventory = "inventory"
	SeqDevices   = "devices"
)

// Seed is the value the first NextSequence call for name returns.
func Seed(name string) int64 {
	if name == SeqOrders {
		return 1001
	}
	return 1
}
