// Package returns re-admits sold units to the receive pipeline.
package returns

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tradein-orders/internal/apperr"
	"github.com/ariefcatur/go-tradein-orders/internal/events"
	"github.com/ariefcatur/go-tradein-orders/internal/inventory"
	"github.com/ariefcatur/go-tradein-orders/internal/logging"
	"github.com/ariefcatur/go-tradein-orders/internal/metrics"
	"github.com/ariefcatur/go-tradein-orders/internal/store"
)

type Request struct {
	InventoryID   string `json:"inventoryId"`
	CosmeticGrade string `json:"cosmeticGrade,omitempty"`
	ReturnReason  string `json:"returnReason,omitempty"`
	OrderID       string `json:"orderId,omitempty"`
}

type Processor struct {
	store  store.Store
	pub    events.Publisher
	log    *zap.Logger
	met    *metrics.Metrics
	tracer trace.Tracer
	now    func() time.Time
}

func New(st store.Store, pub events.Publisher, log *zap.Logger, met *metrics.Metrics) *Processor {
	if pub == nil {
		pub = events.Nop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if met == nil {
		met = metrics.Discard()
	}
	return &Processor{
		store:  st,
		pub:    pub,
		log:    log,
		met:    met,
		tracer: otel.Tracer("tradein.returns"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ProcessReturn moves a sold item back to received. Items in any other state
// fail with apperr.ErrInvalidState.
func (p *Processor) ProcessReturn(ctx context.Context, req Request) (_ *inventory.Item, err error) {
	id := strings.TrimSpace(req.InventoryID)
	ctx, span := p.tracer.Start(ctx, "returns.ProcessReturn", trace.WithAttributes(
		attribute.String("item.id", id),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcomeOf(err))
		} else {
			span.SetStatus(codes.Ok, "ok")
		}
		span.End()
	}()

	if id == "" {
		p.met.Returns.WithLabelValues(string(apperr.KindValidation)).Inc()
		return nil, apperr.Validation("inventoryId is required")
	}

	var out *inventory.Item
	err = p.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		it, err := tx.Item(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("inventory item %s not found", id)
		}
		if err != nil {
			return err
		}
		if err := it.MarkReturned(strings.TrimSpace(req.ReturnReason), strings.TrimSpace(req.OrderID), strings.TrimSpace(req.CosmeticGrade), p.now()); err != nil {
			return apperr.InvalidState("%v", err)
		}
		out = it
		return tx.PutItem(ctx, it)
	})

	log := logging.FromContext(ctx, p.log)
	if err != nil {
		p.met.Returns.WithLabelValues(outcomeOf(err)).Inc()
		log.Info("return_rejected", zap.String("item_id", id), zap.Error(err))
		return nil, err
	}

	p.met.Returns.WithLabelValues("ok").Inc()
	log.Info("item_returned",
		zap.String("item_id", out.ID),
		zap.Int64("inventory_id", out.InventoryID),
		zap.String("order_id", out.Return.OrderID),
		zap.String("grade", out.CosmeticGrade),
	)
	events.Emit(ctx, p.pub, log, events.TopicItemReturned, events.EventItemReturned, out.Return.OrderID, events.ItemReturnedPayload{
		ItemID:      out.ID,
		InventoryID: out.InventoryID,
		OrderID:     out.Return.OrderID,
		Reason:      out.Return.Reason,
		Grade:       out.CosmeticGrade,
	})
	return out, nil
}

func outcomeOf(err error) string {
	if k := apperr.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
