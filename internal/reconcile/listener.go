// Package reconcile applies asynchronous payment completions. Every entry
// point is idempotent on the order id: a paid order is never touched again.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tradein-orders/internal/events"
	"github.com/ariefcatur/go-tradein-orders/internal/logging"
	"github.com/ariefcatur/go-tradein-orders/internal/metrics"
	"github.com/ariefcatur/go-tradein-orders/internal/orders"
	"github.com/ariefcatur/go-tradein-orders/internal/store"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeAnomaly   Outcome = "anomaly"
	OutcomeIgnored   Outcome = "ignored"
)

// Notification sources, used as the metrics label.
const (
	SourceWebhook = "webhook"
	SourceKafka   = "kafka"
)

// Deduper remembers processed notification ids. It is a fast path only;
// correctness comes from the paid-order guard in the store.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// StatusCache mirrors order status for read endpoints.
type StatusCache interface {
	SetStatus(ctx context.Context, orderID string, status orders.Status) error
}

// anomaly aborts the transaction without mutation; the notification is
// acknowledged and logged.
type anomaly struct{ reason string }

func (a anomaly) Error() string { return "reconcile anomaly: " + a.reason }

type Listener struct {
	store  store.Store
	pub    events.Publisher
	dedup  Deduper
	cache  StatusCache
	log    *zap.Logger
	met    *metrics.Metrics
	tracer trace.Tracer
	now    func() time.Time

	webhookSecret string
	tolerance     time.Duration
}

type Option func(*Listener)

func WithPublisher(p events.Publisher) Option { return func(l *Listener) { l.pub = p } }
func WithDeduper(d Deduper) Option            { return func(l *Listener) { l.dedup = d } }
func WithStatusCache(c StatusCache) Option    { return func(l *Listener) { l.cache = c } }
func WithLogger(z *zap.Logger) Option         { return func(l *Listener) { l.log = z } }
func WithMetrics(m *metrics.Metrics) Option   { return func(l *Listener) { l.met = m } }
func WithClock(now func() time.Time) Option   { return func(l *Listener) { l.now = now } }

// WithWebhookSecret sets the shared secret webhook signatures are checked
// against, and the allowed clock skew.
func WithWebhookSecret(secret string, tolerance time.Duration) Option {
	return func(l *Listener) {
		l.webhookSecret = secret
		l.tolerance = tolerance
	}
}

func New(st store.Store, opts ...Option) *Listener {
	l := &Listener{
		store:  st,
		pub:    events.Nop(),
		log:    zap.NewNop(),
		met:    metrics.Discard(),
		tracer: otel.Tracer("tradein.reconcile"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// OnPaymentCompleted marks the order paid and its items sold in one
// transaction. Unknown, cancelled or inconsistent orders are reported as
// anomalies and left untouched; only store failures return an error.
func (l *Listener) OnPaymentCompleted(ctx context.Context, source, orderID, reference string) (out Outcome, err error) {
	ctx, span := l.tracer.Start(ctx, "reconcile.OnPaymentCompleted", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("reconcile.source", source),
	))
	log := logging.FromContext(ctx, l.log).With(
		zap.String("order_id", orderID),
		zap.String("source", source),
	)
	defer func() {
		label := string(out)
		if err != nil {
			label = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, label)
		} else {
			span.SetStatus(codes.Ok, label)
		}
		span.SetAttributes(attribute.String("reconcile.outcome", label))
		l.met.ReconcileEvents.WithLabelValues(source, label).Inc()
		span.End()
	}()

	if orderID == "" {
		log.Warn("reconcile_anomaly", zap.String("reason", "missing_order_id"))
		return OutcomeAnomaly, nil
	}

	var (
		o       *orders.Order
		applied bool
	)
	err = l.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		applied = false
		var err error
		o, err = tx.Order(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return anomaly{"order_not_found"}
		}
		if err != nil {
			return err
		}
		if o.IsPaid() {
			return nil
		}
		if o.Status == orders.StatusCancelled {
			return anomaly{"order_cancelled"}
		}

		now := l.now()
		for _, id := range o.ItemIDs() {
			it, err := tx.Item(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return anomaly{"item_not_found"}
			}
			if err != nil {
				return err
			}
			if err := it.Sell(orderID, now); err != nil {
				return anomaly{"item_not_reserved"}
			}
			if err := tx.PutItem(ctx, it); err != nil {
				return err
			}
		}
		if err := o.MarkPaid(orders.ModeProcessor, reference, now); err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		applied = true
		return tx.PutOrder(ctx, o)
	})

	var an anomaly
	switch {
	case errors.As(err, &an):
		log.Warn("reconcile_anomaly", zap.String("reason", an.reason), zap.String("processor_reference", reference))
		return OutcomeAnomaly, nil
	case err != nil:
		log.Error("reconcile_failed", zap.Error(err))
		return "", err
	case !applied:
		log.Info("reconcile_duplicate")
		return OutcomeDuplicate, nil
	}

	l.met.PaymentCompletions.WithLabelValues(string(orders.ModeProcessor)).Inc()
	log.Info("order_paid",
		zap.Int64("order_number", o.OrderNumber),
		zap.String("payment_mode", string(orders.ModeProcessor)),
		zap.String("processor_reference", reference),
	)
	l.cacheStatus(ctx, o)
	events.Emit(ctx, l.pub, log, events.TopicOrderPaid, events.EventOrderPaid, orderID, events.OrderPaidPayload{
		OrderID:            orderID,
		OrderNumber:        o.OrderNumber,
		PaymentMode:        string(orders.ModeProcessor),
		ProcessorReference: reference,
		TotalAUD:           o.TotalAUD.StringFixed(2),
	})
	return OutcomeApplied, nil
}

func (l *Listener) cacheStatus(ctx context.Context, o *orders.Order) {
	if l.cache == nil {
		return
	}
	if err := l.cache.SetStatus(ctx, o.ID, o.Status); err != nil {
		logging.FromContext(ctx, l.log).Warn("status_cache_write_failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (l *Listener) seen(ctx context.Context, key string) bool {
	if l.dedup == nil || key == "" {
		return false
	}
	ok, err := l.dedup.Seen(ctx, key)
	if err != nil {
		logging.FromContext(ctx, l.log).Warn("dedup_lookup_failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

func (l *Listener) mark(ctx context.Context, key string) {
	if l.dedup == nil || key == "" {
		return
	}
	if err := l.dedup.Mark(ctx, key); err != nil {
		logging.FromContext(ctx, l.log).Warn("dedup_mark_failed", zap.String("key", key), zap.Error(err))
	}
}
