package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ariefcatur/go-tradein-orders/internal/apperr"
	"github.com/ariefcatur/go-tradein-orders/internal/inventory"
	"github.com/ariefcatur/go-tradein-orders/internal/orders"
	"github.com/ariefcatur/go-tradein-orders/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func putItem(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.PutItem(ctx, &inventory.Item{ID: id, Serial: "SN-" + id, Status: inventory.StatusListed, Listed: true})
	})
	require.NoError(t, err)
}

func TestRunTx_AbortDiscardsWrites(t *testing.T) {
	s := New()
	boom := errors.New("boom")

	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.PutOrder(ctx, &orders.Order{ID: "o-1"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Order(ctx, "o-1")
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunTx_ReadYourWrites(t *testing.T) {
	s := New()
	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.PutOrder(ctx, &orders.Order{ID: "o-1", OrderNumber: 7}))
		o, err := tx.Order(ctx, "o-1")
		require.NoError(t, err)
		assert.EqualValues(t, 7, o.OrderNumber)
		return nil
	})
	require.NoError(t, err)
}

func TestCommit_DetectsConcurrentWrite(t *testing.T) {
	s := New(WithPolicy(store.Policy{MaxAttempts: 1}))
	putItem(t, s, "item-1")

	inside := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			it, err := tx.Item(ctx, "item-1")
			if err != nil {
				return err
			}
			close(inside)
			<-proceed
			it.Location = "shelf-a"
			return tx.PutItem(ctx, it)
		})
	}()

	<-inside
	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		it, err := tx.Item(ctx, "item-1")
		if err != nil {
			return err
		}
		it.Location = "shelf-b"
		return tx.PutItem(ctx, it)
	})
	require.NoError(t, err)
	close(proceed)

	err = <-done
	assert.ErrorIs(t, err, apperr.ErrTransient)
	assert.ErrorIs(t, err, store.ErrTxConflict)

	_ = s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		it, err := tx.Item(ctx, "item-1")
		require.NoError(t, err)
		assert.Equal(t, "shelf-b", it.Location)
		return nil
	})
}

func TestNextSequence_SeedsAndIncrements(t *testing.T) {
	s := New()
	var got []int64
	for i := 0; i < 3; i++ {
		err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			n, err := tx.NextSequence(ctx, store.SeqOrders)
			got = append(got, n)
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{1001, 1002, 1003}, got)

	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		n, err := tx.NextSequence(ctx, store.SeqInventory)
		assert.EqualValues(t, 1, n)
		return err
	})
	require.NoError(t, err)
}

func TestNextSequence_AbortedIncrementIsDiscarded(t *testing.T) {
	s := New()
	_ = s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, _ = tx.NextSequence(ctx, store.SeqOrders)
		return errors.New("abort")
	})
	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		n, err := tx.NextSequence(ctx, store.SeqOrders)
		assert.EqualValues(t, 1001, n, "aborted increments are never visible")
		return err
	})
	require.NoError(t, err)
}

func TestNextSequence_UniqueUnderConcurrency(t *testing.T) {
	const n = 100
	// Each conflict implies another transaction committed, so n attempts always suffice.
	s := New(WithPolicy(store.Policy{MaxAttempts: n + 1}))

	var wg sync.WaitGroup
	results := make(chan int64, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got int64
			err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
				v, err := tx.NextSequence(ctx, store.SeqOrders)
				got = v
				return err
			})
			if err != nil {
				errs <- err
				return
			}
			results <- got
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := map[int64]bool{}
	for v := range results {
		assert.False(t, seen[v], "duplicate sequence value %d", v)
		seen[v] = true
	}
	assert.Len(t, seen, n)
}

func TestPutItem_SerialIsCaseInsensitiveUnique(t *testing.T) {
	s := New()
	putItem(t, s, "a")

	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.PutItem(ctx, &inventory.Item{ID: "b", Serial: "sn-A"})
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	err = s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		it, err := tx.ItemBySerial(ctx, "SN-a")
		if err != nil {
			return err
		}
		assert.Equal(t, "a", it.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestPendingOrdersBefore(t *testing.T) {
	s := New()
	old := time.Now().Add(-time.Hour)
	err := s.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, o := range []*orders.Order{
			{ID: "old-pending", Status: orders.StatusPending, CreatedAt: old},
			{ID: "old-paid", Status: orders.StatusPaid, CreatedAt: old},
			{ID: "new-pending", Status: orders.StatusPending, CreatedAt: time.Now()},
		} {
			if err := tx.PutOrder(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	ids, err := s.PendingOrdersBefore(context.Background(), time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"old-pending"}, ids)
}
