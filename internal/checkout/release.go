package checkout

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-tradein-orders/internal/apperr"
	"github.com/ariefcatur/go-tradein-orders/internal/events"
	"github.com/ariefcatur/go-tradein-orders/internal/logging"
	"github.com/ariefcatur/go-tradein-orders/internal/orders"
	"github.com/ariefcatur/go-tradein-orders/internal/store"
)

// Release reasons.
const (
	ReasonPaymentFailed    = "payment_session_failed"
	ReasonCompletionFailed = "payment_completion_failed"
	ReasonExpired          = "reservation_expired"
)

// complete marks the order paid and its items sold without a processor
// reference. It is the stub path and is labelled with mode in every signal.
func (c *Coordinator) complete(ctx context.Context, orderID string, mode orders.PaymentMode) error {
	var (
		o       *orders.Order
		applied bool
	)
	err := c.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		applied = false
		o, err = tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		now := c.now()
		if err := o.MarkPaid(mode, "", now); err != nil {
			if errors.Is(err, orders.ErrAlreadyPaid) {
				return nil
			}
			return apperr.InvalidState("%v", err)
		}
		for _, id := range o.ItemIDs() {
			it, err := tx.Item(ctx, id)
			if err != nil {
				return fmt.Errorf("load item %s: %w", id, err)
			}
			if err := it.Sell(orderID, now); err != nil {
				return apperr.InvalidState("%v", err)
			}
			if err := tx.PutItem(ctx, it); err != nil {
				return err
			}
		}
		applied = true
		return tx.PutOrder(ctx, o)
	})
	if err != nil || !applied {
		return err
	}

	log := logging.FromContext(ctx, c.log)
	c.met.PaymentCompletions.WithLabelValues(string(mode)).Inc()
	c.cacheStatus(ctx, log, orderID, orders.StatusPaid)
	log.Warn("stub_payment_completed",
		zap.String("order_id", orderID),
		zap.Int64("order_number", o.OrderNumber),
		zap.String("payment_mode", string(mode)),
	)
	events.Emit(ctx, c.pub, log, events.TopicOrderPaid, events.EventOrderPaid, orderID, events.OrderPaidPayload{
		OrderID:     orderID,
		OrderNumber: o.OrderNumber,
		PaymentMode: string(mode),
		TotalAUD:    o.TotalAUD.StringFixed(2),
	})
	return nil
}

// Release cancels a pending order and relists the items it still holds.
// It reports false when the order is no longer pending.
func (c *Coordinator) Release(ctx context.Context, orderID, reason string) (bool, error) {
	var (
		released bool
		relisted []string
	)
	err := c.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		released, relisted = false, nil
		o, err := tx.Order(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("order %s not found", orderID)
		}
		if err != nil {
			return err
		}
		if o.Status != orders.StatusPending {
			return nil
		}
		now := c.now()
		if err := o.Cancel(reason, now); err != nil {
			return apperr.InvalidState("%v", err)
		}
		for _, id := range o.ItemIDs() {
			it, err := tx.Item(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			// items already moved on by another order stay untouched
			if it.Release(orderID, now) != nil {
				continue
			}
			if err := tx.PutItem(ctx, it); err != nil {
				return err
			}
			relisted = append(relisted, id)
		}
		released = true
		return tx.PutOrder(ctx, o)
	})
	if err != nil || !released {
		return false, err
	}

	log := logging.FromContext(ctx, c.log)
	c.met.ReservationsReleased.WithLabelValues(reason).Inc()
	c.cacheStatus(ctx, log, orderID, orders.StatusCancelled)
	log.Info("reservation_released",
		zap.String("order_id", orderID),
		zap.String("reason", reason),
		zap.Strings("item_ids", relisted),
	)
	events.Emit(ctx, c.pub, log, events.TopicOrderCancelled, events.EventOrderCancelled, orderID, events.OrderCancelledPayload{
		OrderID: orderID,
		Reason:  reason,
		ItemIDs: relisted,
	})
	return true, nil
}
