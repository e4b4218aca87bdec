package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tradein-orders/internal/apperr"
	"github.com/ariefcatur/go-tradein-orders/internal/catalog"
	"github.com/ariefcatur/go-tradein-orders/internal/events"
	"github.com/ariefcatur/go-tradein-orders/internal/inventory"
	"github.com/ariefcatur/go-tradein-orders/internal/logging"
	"github.com/ariefcatur/go-tradein-orders/internal/orders"
	"github.com/ariefcatur/go-tradein-orders/internal/payment"
	"github.com/ariefcatur/go-tradein-orders/internal/pricing"
	"github.com/ariefcatur/go-tradein-orders/internal/store"
)

type Result struct {
	OrderID     string             `json:"orderId"`
	OrderNumber int64              `json:"orderNumber"`
	URL         string             `json:"url,omitempty"`
	PaymentMode orders.PaymentMode `json:"paymentMode"`
}

// Checkout reserves every requested item and creates the order atomically,
// then completes payment (stub mode) or opens a processor session.
func (c *Coordinator) Checkout(ctx context.Context, req Request) (res Result, err error) {
	ctx, span := c.tracer.Start(ctx, "checkout.Checkout", trace.WithAttributes(
		attribute.Int("cart.items", len(req.Items)),
		attribute.Int("cart.upsells", len(req.UpsellItems)),
		attribute.String("payment.mode", string(c.pay.Mode)),
	))
	start := time.Now()
	log := logging.FromContext(ctx, c.log)
	defer func() {
		outcome := outcomeOf(err)
		c.met.CheckoutRequests.WithLabelValues(outcome).Inc()
		c.met.CheckoutDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("checkout.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		} else {
			span.SetAttributes(attribute.String("order.id", res.OrderID))
			span.SetStatus(codes.Ok, outcome)
		}
		span.End()
	}()

	itemIDs, upsells, cust, err := req.normalize()
	if err != nil {
		return Result{}, err
	}

	o, err := c.reserve(ctx, itemIDs, upsells, cust, req.ShippingAddress)
	if err != nil {
		if ids := apperr.ItemsOf(err); len(ids) > 0 {
			log.Info("checkout_items_unavailable", zap.Strings("item_ids", ids))
		}
		return Result{}, err
	}
	log.Info("order_reserved",
		zap.String("order_id", o.ID),
		zap.Int64("order_number", o.OrderNumber),
		zap.Strings("item_ids", o.ItemIDs()),
		zap.String("total_aud", o.TotalAUD.StringFixed(2)),
	)
	c.cacheStatus(ctx, log, o.ID, orders.StatusPending)
	events.Emit(ctx, c.pub, log, events.TopicOrderReserved, events.EventOrderReserved, o.ID, reservedPayload(o))

	res = Result{OrderID: o.ID, OrderNumber: o.OrderNumber}
	if !c.processorEnabled() {
		res.PaymentMode = orders.ModeStub
		if err := c.completeOrRelease(ctx, log, o.ID, orders.ModeStub); err != nil {
			return Result{}, err
		}
		return res, nil
	}

	sess, perr := c.processor.CreateSession(ctx, payment.SessionFromOrder(o, c.pay))
	if perr != nil {
		log.Error("payment_session_failed", zap.String("order_id", o.ID), zap.Error(perr))
		if c.pay.StubFallback {
			res.PaymentMode = orders.ModeStubFallback
			if err := c.completeOrRelease(ctx, log, o.ID, orders.ModeStubFallback); err != nil {
				return Result{}, err
			}
			return res, nil
		}
		c.release(ctx, log, o.ID, ReasonPaymentFailed)
		return Result{}, apperr.External(perr, "payment processor unavailable")
	}

	if err := c.attachSession(ctx, o.ID, sess.ID); err != nil {
		return Result{}, err
	}
	log.Info("payment_session_created", zap.String("order_id", o.ID), zap.String("session_id", sess.ID))
	res.URL = sess.URL
	res.PaymentMode = orders.ModeProcessor
	return res, nil
}

// completeOrRelease runs the stub completion and, when it fails, gives the
// reserved items back so a retried checkout can take them again.
func (c *Coordinator) completeOrRelease(ctx context.Context, log *zap.Logger, orderID string, mode orders.PaymentMode) error {
	err := c.complete(ctx, orderID, mode)
	if err == nil {
		return nil
	}
	log.Error("stub_completion_failed", zap.String("order_id", orderID), zap.Error(err))
	c.release(ctx, log, orderID, ReasonCompletionFailed)
	return err
}

// release runs Release detached from ctx, which may already be done.
func (c *Coordinator) release(ctx context.Context, log *zap.Logger, orderID, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := c.Release(ctx, orderID, reason); err != nil {
		log.Error("reservation_release_failed", zap.String("order_id", orderID), zap.String("reason", reason), zap.Error(err))
	}
}

func (c *Coordinator) reserve(ctx context.Context, itemIDs []string, sel []UpsellSelection, cust orders.Customer, addr orders.Address) (*orders.Order, error) {
	var out *orders.Order
	err := c.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := c.now()

		upsells := make([]orders.UpsellLine, 0, len(sel))
		for _, s := range sel {
			u, err := tx.Upsell(ctx, s.UpsellID)
			if errors.Is(err, store.ErrNotFound) {
				return apperr.Validation("upsell %s does not exist", s.UpsellID)
			}
			if err != nil {
				return err
			}
			if !u.Active {
				return apperr.Validation("upsell %s is not available", s.UpsellID)
			}
			upsells = append(upsells, orders.UpsellLine{UpsellID: u.ID, Name: u.Name, PriceAUD: u.PriceAUD, Quantity: s.Quantity})
		}

		items := make([]*inventory.Item, 0, len(itemIDs))
		var unavailable []string
		for _, id := range itemIDs {
			it, err := tx.Item(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				unavailable = append(unavailable, id)
				continue
			}
			if err != nil {
				return err
			}
			if !it.Purchasable() {
				unavailable = append(unavailable, id)
				continue
			}
			items = append(items, it)
		}
		if len(unavailable) > 0 {
			return apperr.Unavailable(unavailable...)
		}

		number, err := tx.NextSequence(ctx, store.SeqOrders)
		if err != nil {
			return err
		}

		o := &orders.Order{
			ID:              c.newID(),
			OrderNumber:     number,
			UpsellItems:     upsells,
			Customer:        cust,
			ShippingAddress: addr,
			Currency:        currencyAUD,
			Status:          orders.StatusPending,
			PaymentStatus:   orders.PaymentPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		subtotal := decimal.Zero
		categories := make([]string, 0, len(items))
		for _, it := range items {
			line, err := snapshot(ctx, tx, it)
			if err != nil {
				return err
			}
			o.Items = append(o.Items, line)
			categories = append(categories, line.Category)
			subtotal = subtotal.Add(line.PriceAUD)
		}
		for _, u := range upsells {
			subtotal = subtotal.Add(u.Amount())
		}
		t := pricing.Compute(categories, subtotal, c.rates)
		o.SubtotalAUD, o.ShippingAUD, o.GSTAUD, o.TotalAUD = t.Subtotal, t.Shipping, t.GST, t.Total

		if err := tx.PutOrder(ctx, o); err != nil {
			return err
		}
		for _, it := range items {
			if err := it.Reserve(o.ID, now); err != nil {
				return apperr.Unavailable(it.ID)
			}
			if err := tx.PutItem(ctx, it); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	return out, err
}

// snapshot freezes the item's description and price into an order line.
func snapshot(ctx context.Context, tx store.Tx, it *inventory.Item) (orders.Line, error) {
	var dev *catalog.Device
	if it.DeviceRef != "" {
		d, err := tx.Device(ctx, it.DeviceRef)
		switch {
		case err == nil:
			dev = d
		case !errors.Is(err, store.ErrNotFound):
			return orders.Line{}, err
		}
	}
	category := it.Category
	if category == "" && dev != nil {
		category = dev.Category
	}
	return orders.Line{
		ItemID:      it.ID,
		InventoryID: it.InventoryID,
		Description: describe(it, dev, category),
		Category:    category,
		PriceAUD:    pricing.Round(it.Price()),
	}, nil
}

func describe(it *inventory.Item, dev *catalog.Device, category string) string {
	name := category
	if dev != nil {
		if t := dev.Title(); t != "" {
			name = t
		}
	}
	if name == "" {
		name = fmt.Sprintf("Device #%d", it.InventoryID)
	}
	if it.CosmeticGrade != "" {
		name += " - Grade " + it.CosmeticGrade
	}
	return name
}

func (c *Coordinator) attachSession(ctx context.Context, orderID, sessionID string) error {
	return c.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		if err := o.AttachSession(sessionID, c.now()); err != nil {
			return apperr.InvalidState("%v", err)
		}
		return tx.PutOrder(ctx, o)
	})
}

func reservedPayload(o *orders.Order) events.OrderReservedPayload {
	p := events.OrderReservedPayload{OrderID: o.ID, OrderNumber: o.OrderNumber, TotalAUD: o.TotalAUD.StringFixed(2)}
	for _, l := range o.Items {
		p.Items = append(p.Items, events.LinePayload{ItemID: l.ItemID, InventoryID: l.InventoryID, PriceAUD: l.PriceAUD.StringFixed(2)})
	}
	return p
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if k := apperr.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
