package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-tradein-orders/internal/apperr"
	"github.com/ariefcatur/go-tradein-orders/internal/catalog"
	"github.com/ariefcatur/go-tradein-orders/internal/inventory"
	"github.com/ariefcatur/go-tradein-orders/internal/orders"
	"github.com/ariefcatur/go-tradein-orders/internal/store"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"

	serialIndex = "inventory_items_serial_key"
)

// Store runs every transaction at SERIALIZABLE isolation and locks the rows
// it reads. Serialization failures and deadlocks surface as
// store.ErrTxConflict and are retried per Policy.
type Store struct {
	pool   *pgxpool.Pool
	policy store.Policy
}

func NewStore(pool *pgxpool.Pool, p store.Policy) *Store {
	return &Store{pool: pool, policy: p}
}

var _ store.Store = (*Store)(nil)

func (s *Store) RunTx(ctx context.Context, fn store.TxFunc) error {
	return store.Retry(ctx, s.policy, func(ctx context.Context) error {
		tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback(ctx) // no-op after commit

		if err := fn(ctx, &pgTx{tx: tx}); err != nil {
			return mapErr(err)
		}
		return mapErr(tx.Commit(ctx))
	})
}

// mapErr translates driver errors into store and apperr errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pg *pgconn.PgError
	if errors.As(err, &pg) {
		switch pg.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return store.ErrTxConflict
		case codeUniqueViolation:
			if pg.ConstraintName == serialIndex {
				return apperr.Conflict("serial already belongs to another item")
			}
			return apperr.Conflict("%s", pg.Detail)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) PendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM orders
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3`, string(orders.StatusPending), cutoff, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// PutDevice upserts a catalog device outside any reservation transaction.
func (s *Store) PutDevice(ctx context.Context, d catalog.Device) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO devices (ref, doc) VALUES ($1, $2)
		ON CONFLICT (ref) DO UPDATE SET doc = EXCLUDED.doc`, d.Ref, b)
	return err
}

// PutUpsell upserts an upsell product outside any reservation transaction.
func (s *Store) PutUpsell(ctx context.Context, u catalog.Upsell) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO upsells (id, doc) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`, u.ID, b)
	return err
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) scanDoc(ctx context.Context, out any, sql string, args ...any) error {
	var b []byte
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&b); err != nil {
		return mapErr(err)
	}
	return json.Unmarshal(b, out)
}

func (t *pgTx) Item(ctx context.Context, id string) (*inventory.Item, error) {
	var it inventory.Item
	if err := t.scanDoc(ctx, &it, `SELECT doc FROM inventory_items WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &it, nil
}

func (t *pgTx) ItemBySerial(ctx context.Context, serial string) (*inventory.Item, error) {
	var it inventory.Item
	err := t.scanDoc(ctx, &it, `SELECT doc FROM inventory_items WHERE lower(serial) = $1 FOR UPDATE`,
		inventory.NormalizeSerial(serial))
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (t *pgTx) PutItem(ctx context.Context, it *inventory.Item) error {
	b, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("encode item %s: %w", it.ID, err)
	}
	var orderID *string
	if it.OrderID != "" {
		orderID = &it.OrderID
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO inventory_items (id, inventory_id, serial, status, listed, order_id, sell_price_aud, doc, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (id) DO UPDATE SET
			inventory_id = EXCLUDED.inventory_id,
			serial = EXCLUDED.serial,
			status = EXCLUDED.status,
			listed = EXCLUDED.listed,
			order_id = EXCLUDED.order_id,
			sell_price_aud = EXCLUDED.sell_price_aud,
			doc = EXCLUDED.doc,
			updated_at = now()`,
		it.ID, it.InventoryID, it.Serial, string(it.Status), it.Listed, orderID, it.SellPriceAUD, b)
	return mapErr(err)
}

func (t *pgTx) Order(ctx context.Context, id string) (*orders.Order, error) {
	var o orders.Order
	if err := t.scanDoc(ctx, &o, `SELECT doc FROM orders WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *pgTx) PutOrder(ctx context.Context, o *orders.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", o.ID, err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, status, payment_status, total_aud, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			payment_status = EXCLUDED.payment_status,
			total_aud = EXCLUDED.total_aud,
			doc = EXCLUDED.doc,
			updated_at = now()`,
		o.ID, o.OrderNumber, string(o.Status), string(o.PaymentStatus), o.TotalAUD, b, o.CreatedAt)
	return mapErr(err)
}

func (t *pgTx) Device(ctx context.Context, ref string) (*catalog.Device, error) {
	var d catalog.Device
	if err := t.scanDoc(ctx, &d, `SELECT doc FROM devices WHERE ref = $1`, ref); err != nil {
		return nil, err
	}
	return &d, nil
}

func (t *pgTx) Upsell(ctx context.Context, id string) (*catalog.Upsell, error) {
	var u catalog.Upsell
	if err := t.scanDoc(ctx, &u, `SELECT doc FROM upsells WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// NextSequence seeds and increments in one statement, so two racing first
// calls cannot both return the seed.
func (t *pgTx) NextSequence(ctx context.Context, name string) (int64, error) {
	var v int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO counters (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value`, name, store.Seed(name)).Scan(&v)
	return v, mapErr(err)
}
