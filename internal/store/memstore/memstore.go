// Package memstore is an in-process document store with optimistic
// multi-document transactions. Each document carries a version; a transaction
// records the version of everything it reads and commits only if none of them
// changed in the meantime.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-tradein-orders/internal/apperr"
	"github.com/ariefcatur/go-tradein-orders/internal/catalog"
	"github.com/ariefcatur/go-tradein-orders/internal/inventory"
	"github.com/ariefcatur/go-tradein-orders/internal/orders"
	"github.com/ariefcatur/go-tradein-orders/internal/store"
)

const (
	prefixItem    = "inventory/"
	prefixSerial  = "serials/"
	prefixOrder   = "orders/"
	prefixDevice  = "devices/"
	prefixUpsell  = "upsells/"
	prefixCounter = "counters/"
)

type doc struct {
	version uint64
	data    []byte
}

type Store struct {
	mu     sync.Mutex
	docs   map[string]doc
	policy store.Policy
}

type Option func(*Store)

func WithPolicy(p store.Policy) Option {
	return func(s *Store) { s.policy = p }
}

func New(opts ...Option) *Store {
	s := &Store{docs: make(map[string]doc), policy: store.DefaultPolicy()}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

func (s *Store) RunTx(ctx context.Context, fn store.TxFunc) error {
	return store.Retry(ctx, s.policy, func(ctx context.Context) error {
		t := &tx{s: s, reads: map[string]uint64{}, writes: map[string][]byte{}}
		if err := fn(ctx, t); err != nil {
			// An abort decided on a stale view is retried so callers only see
			// domain errors that hold against committed state.
			if !errors.Is(err, store.ErrTxConflict) && !s.fresh(t) {
				return store.ErrTxConflict
			}
			return err
		}
		return s.commit(t)
	})
}

func (s *Store) fresh(t *tx) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validLocked(t)
}

func (s *Store) validLocked(t *tx) bool {
	for k, v := range t.reads {
		if s.docs[k].version != v {
			return false
		}
	}
	return true
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(t) {
		return store.ErrTxConflict
	}
	for k, data := range t.writes {
		cur := s.docs[k]
		s.docs[k] = doc{version: cur.version + 1, data: data}
	}
	return nil
}

func (s *Store) load(key string) (doc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[key]
	return d, ok
}

// PutDevice writes a catalog device outside any reservation transaction.
func (s *Store) PutDevice(d catalog.Device) error {
	return s.putDirect(prefixDevice+d.Ref, d)
}

// PutUpsell writes an upsell product outside any reservation transaction.
func (s *Store) PutUpsell(u catalog.Upsell) error {
	return s.putDirect(prefixUpsell+u.ID, u)
}

func (s *Store) putDirect(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.docs[key]
	s.docs[key] = doc{version: cur.version + 1, data: b}
	return nil
}

func (s *Store) PendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type cand struct {
		id      string
		created time.Time
	}
	var found []cand
	for k, d := range s.docs {
		if !strings.HasPrefix(k, prefixOrder) {
			continue
		}
		var o orders.Order
		if err := json.Unmarshal(d.data, &o); err != nil {
			return nil, fmt.Errorf("decode %s: %w", k, err)
		}
		if o.Status == orders.StatusPending && o.CreatedAt.Before(cutoff) {
			found = append(found, cand{id: o.ID, created: o.CreatedAt})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].created.Before(found[j].created) })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	out := make([]string, 0, len(found))
	for _, c := range found {
		out = append(out, c.id)
	}
	return out, ctx.Err()
}

type tx struct {
	s      *Store
	reads  map[string]uint64
	writes map[string][]byte
}

// get returns the document as this transaction sees it.
func (t *tx) get(key string, out any) error {
	if b, ok := t.writes[key]; ok {
		return json.Unmarshal(b, out)
	}
	d, ok := t.s.load(key)
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = d.version
	} else if t.reads[key] != d.version {
		return store.ErrTxConflict
	}
	if !ok {
		return store.ErrNotFound
	}
	return json.Unmarshal(d.data, out)
}

func (t *tx) put(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, seen := t.reads[key]; !seen {
		d, _ := t.s.load(key)
		t.reads[key] = d.version
	}
	t.writes[key] = b
	return nil
}

func (t *tx) Item(_ context.Context, id string) (*inventory.Item, error) {
	var it inventory.Item
	if err := t.get(prefixItem+id, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (t *tx) ItemBySerial(ctx context.Context, serial string) (*inventory.Item, error) {
	var id string
	if err := t.get(prefixSerial+inventory.NormalizeSerial(serial), &id); err != nil {
		return nil, err
	}
	return t.Item(ctx, id)
}

func (t *tx) PutItem(_ context.Context, it *inventory.Item) error {
	key := prefixSerial + inventory.NormalizeSerial(it.Serial)
	var owner string
	switch err := t.get(key, &owner); {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	case owner != it.ID:
		return apperr.Conflict("serial %q already belongs to item %s", it.Serial, owner)
	}
	if err := t.put(key, it.ID); err != nil {
		return err
	}
	return t.put(prefixItem+it.ID, it)
}

func (t *tx) Order(_ context.Context, id string) (*orders.Order, error) {
	var o orders.Order
	if err := t.get(prefixOrder+id, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *tx) PutOrder(_ context.Context, o *orders.Order) error {
	return t.put(prefixOrder+o.ID, o)
}

func (t *tx) Device(_ context.Context, ref string) (*catalog.Device, error) {
	var d catalog.Device
	if err := t.get(prefixDevice+ref, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (t *tx) Upsell(_ context.Context, id string) (*catalog.Upsell, error) {
	var u catalog.Upsell
	if err := t.get(prefixUpsell+id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (t *tx) NextSequence(_ context.Context, name string) (int64, error) {
	key := prefixCounter + name
	var cur int64
	next := store.Seed(name)
	switch err := t.get(key, &cur); {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return 0, err
	default:
		next = cur + 1
	}
	if err := t.put(key, next); err != nil {
		return 0, err
	}
	return next, nil
}
