// Package checkout turns a cart into a reserved order in one store
// transaction and then hands the order to payment.
package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tradein-orders/internal/events"
	"github.com/ariefcatur/go-tradein-orders/internal/metrics"
	"github.com/ariefcatur/go-tradein-orders/internal/orders"
	"github.com/ariefcatur/go-tradein-orders/internal/payment"
	"github.com/ariefcatur/go-tradein-orders/internal/pricing"
	"github.com/ariefcatur/go-tradein-orders/internal/store"
)

// StatusCache mirrors order status for read endpoints.
type StatusCache interface {
	SetStatus(ctx context.Context, orderID string, status orders.Status) error
}

type Coordinator struct {
	store     store.Store
	rates     pricing.RateTable
	pay       payment.Config
	processor payment.Processor
	pub       events.Publisher
	cache     StatusCache
	log       *zap.Logger
	met       *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

type Option func(*Coordinator)

// WithProcessor enables hosted payment. cfg.Mode must be processor for it
// to be used.
func WithProcessor(cfg payment.Config, p payment.Processor) Option {
	return func(c *Coordinator) {
		c.pay = cfg
		c.processor = p
	}
}

func WithPublisher(p events.Publisher) Option { return func(c *Coordinator) { c.pub = p } }
func WithStatusCache(s StatusCache) Option    { return func(c *Coordinator) { c.cache = s } }
func WithLogger(l *zap.Logger) Option         { return func(c *Coordinator) { c.log = l } }
func WithMetrics(m *metrics.Metrics) Option   { return func(c *Coordinator) { c.met = m } }
func WithClock(now func() time.Time) Option   { return func(c *Coordinator) { c.now = now } }

func New(st store.Store, rates pricing.RateTable, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  st,
		rates:  rates,
		pay:    payment.Config{Mode: payment.ModeStub},
		pub:    events.Nop(),
		log:    zap.NewNop(),
		met:    metrics.Discard(),
		tracer: otel.Tracer("tradein.checkout"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) processorEnabled() bool {
	return c.pay.Mode == payment.ModeProcessor && c.processor != nil
}

func (c *Coordinator) cacheStatus(ctx context.Context, log *zap.Logger, orderID string, status orders.Status) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetStatus(ctx, orderID, status); err != nil {
		log.Warn("status_cache_write_failed", zap.String("order_id", orderID), zap.Error(err))
	}
}
