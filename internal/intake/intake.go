// Package intake receives physical units into inventory and moves them
// through the staff pipeline up to listed.
package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tradein-orders/internal/apperr"
	"github.com/ariefcatur/go-tradein-orders/internal/inventory"
	"github.com/ariefcatur/go-tradein-orders/internal/logging"
	"github.com/ariefcatur/go-tradein-orders/internal/store"
)

type ReceiveRequest struct {
	Serial        string               `json:"serial"`
	DeviceRef     string               `json:"deviceRef"`
	Category      string               `json:"category"`
	CosmeticGrade string               `json:"cosmeticGrade"`
	CostNZD       decimal.Decimal      `json:"costNZD"`
	CostAUD       decimal.Decimal      `json:"costAUD"`
	SellPriceAUD  decimal.Decimal      `json:"sellPriceAUD"`
	SellPriceNZD  decimal.NullDecimal  `json:"sellPriceNZD"`
	Location      string               `json:"location,omitempty"`
	Images        []string             `json:"images,omitempty"`
	SourceType    inventory.SourceType `json:"sourceType"`
	SourceQuoteID string               `json:"sourceQuoteId,omitempty"`
}

type Service struct {
	store store.Store
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

func New(st store.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: st, log: log, now: func() time.Time { return time.Now().UTC() }, newID: uuid.NewString}
}

func (r ReceiveRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Serial) == "":
		return apperr.Validation("serial is required")
	case strings.TrimSpace(r.Category) == "":
		return apperr.Validation("category is required")
	case !r.SourceType.Valid():
		return apperr.Validation("sourceType %q is not valid", r.SourceType)
	case r.SellPriceAUD.IsNegative(), r.CostAUD.IsNegative(), r.CostNZD.IsNegative():
		return apperr.Validation("prices must not be negative")
	}
	return nil
}

// Receive creates a unit in received state with the next inventory id.
// Serials are unique ignoring case.
func (s *Service) Receive(ctx context.Context, req ReceiveRequest) (*inventory.Item, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	var out *inventory.Item
	err := s.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		switch existing, err := tx.ItemBySerial(ctx, req.Serial); {
		case err == nil:
			return apperr.Conflict("serial %q already belongs to item %s", req.Serial, existing.ID)
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		n, err := tx.NextSequence(ctx, store.SeqInventory)
		if err != nil {
			return err
		}
		now := s.now()
		images := req.Images
		if images == nil {
			images = []string{}
		}
		it := &inventory.Item{
			ID:            s.newID(),
			InventoryID:   n,
			Serial:        strings.TrimSpace(req.Serial),
			DeviceRef:     req.DeviceRef,
			Category:      req.Category,
			CosmeticGrade: req.CosmeticGrade,
			CostNZD:       req.CostNZD,
			CostAUD:       req.CostAUD,
			SellPriceAUD:  req.SellPriceAUD,
			SellPriceNZD:  req.SellPriceNZD,
			Location:      req.Location,
			Images:        images,
			Status:        inventory.StatusReceived,
			SourceType:    req.SourceType,
			SourceQuoteID: req.SourceQuoteID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		out = it
		return tx.PutItem(ctx, it)
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.log).Info("item_received",
		zap.String("item_id", out.ID),
		zap.Int64("inventory_id", out.InventoryID),
		zap.String("source_type", string(out.SourceType)),
	)
	return out, nil
}

// Advance applies a staff pipeline transition.
func (s *Service) Advance(ctx context.Context, id string, to inventory.Status) (*inventory.Item, error) {
	var out *inventory.Item
	err := s.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		it, err := tx.Item(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("inventory item %s not found", id)
		}
		if err != nil {
			return err
		}
		from := it.Status
		if err := it.Advance(to, s.now()); err != nil {
			return apperr.InvalidState("%v", err)
		}
		out = it
		logging.FromContext(ctx, s.log).Debug("item_advancing", zap.String("item_id", id), zap.String("from", string(from)), zap.String("to", string(to)))
		return tx.PutItem(ctx, it)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
