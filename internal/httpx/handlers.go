package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tradein-orders/internal/apperr"
	"github.com/ariefcatur/go-tradein-orders/internal/checkout"
	"github.com/ariefcatur/go-tradein-orders/internal/intake"
	"github.com/ariefcatur/go-tradein-orders/internal/inventory"
	"github.com/ariefcatur/go-tradein-orders/internal/logging"
	"github.com/ariefcatur/go-tradein-orders/internal/orders"
	"github.com/ariefcatur/go-tradein-orders/internal/payment"
	"github.com/ariefcatur/go-tradein-orders/internal/reconcile"
	"github.com/ariefcatur/go-tradein-orders/internal/returns"
	"github.com/ariefcatur/go-tradein-orders/internal/store"
)

const maxWebhookBody = 1 << 20

// StatusCache is the read-through cache behind GET /orders/{id}.
type StatusCache interface {
	Status(ctx context.Context, orderID string) (orders.Status, bool, error)
	SetStatus(ctx context.Context, orderID string, status orders.Status) error
}

type Handler struct {
	Checkout  *checkout.Coordinator
	Reconcile *reconcile.Listener
	Returns   *returns.Processor
	Intake    *intake.Service
	Store     store.Store
	Cache     StatusCache // optional; checkout and reconcile write it
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/checkout", h.checkout)
	r.Post("/webhooks/payment", h.paymentWebhook)
	r.Post("/returns", h.processReturn)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/inventory", h.receiveItem)
	r.Post("/inventory/{id}/status", h.advanceItem)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResp struct {
	Error string   `json:"error"`
	Items []string `json:"items,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.HTTPStatus(err)
	if code >= http.StatusInternalServerError && apperr.KindOf(err) == "" {
		logging.FromContext(r.Context(), nil).Error("request_failed", zap.Error(err))
		writeJSON(w, code, errorResp{Error: "internal error"})
		return
	}
	writeJSON(w, code, errorResp{Error: err.Error(), Items: apperr.ItemsOf(err)})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid json: %v", err)
	}
	return nil
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Checkout.Checkout(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type webhookResp struct {
	Received bool `json:"received"`
}

// paymentWebhook acknowledges every authentic event with 200, applied or not,
// so the processor stops redelivering. Store failures return 500 so it retries.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "unreadable body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	_, err = h.Reconcile.HandleWebhook(ctx, r.Header.Get(payment.SignatureHeader), body)
	switch {
	case errors.Is(err, payment.ErrBadSignature), errors.Is(err, payment.ErrStale):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
	case err != nil:
		writeError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, webhookResp{Received: true})
	}
}

type itemResp struct {
	ID            string                `json:"id"`
	InventoryID   int64                 `json:"inventoryId"`
	Serial        string                `json:"serial"`
	Status        inventory.Status      `json:"status"`
	Listed        bool                  `json:"listed"`
	SourceType    inventory.SourceType  `json:"sourceType"`
	CosmeticGrade string                `json:"cosmeticGrade,omitempty"`
	Return        *inventory.ReturnInfo `json:"return,omitempty"`
}

func summarize(it *inventory.Item) itemResp {
	return itemResp{
		ID:            it.ID,
		InventoryID:   it.InventoryID,
		Serial:        it.Serial,
		Status:        it.Status,
		Listed:        it.Listed,
		SourceType:    it.SourceType,
		CosmeticGrade: it.CosmeticGrade,
		Return:        it.Return,
	}
}

func (h *Handler) processReturn(w http.ResponseWriter, r *http.Request) {
	var req returns.Request
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Returns.ProcessReturn(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(it))
}

type orderStatusResp struct {
	OrderID string        `json:"orderId"`
	Status  orders.Status `json:"status"`
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if h.Cache != nil {
		if s, ok, err := h.Cache.Status(ctx, orderID); err == nil && ok {
			writeJSON(w, http.StatusOK, orderStatusResp{OrderID: orderID, Status: s})
			return
		}
	}

	// 2) store
	var o *orders.Order
	err := h.Store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, err = tx.Order(ctx, orderID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResp{Error: "not found"})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.SetStatus(ctx, o.ID, o.Status); err != nil {
			logging.FromContext(ctx, nil).Warn("status_cache_write_failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, orderStatusResp{OrderID: o.ID, Status: o.Status})
}

func (h *Handler) receiveItem(w http.ResponseWriter, r *http.Request) {
	var req intake.ReceiveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Intake.Receive(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, summarize(it))
}

type advanceReq struct {
	Status inventory.Status `json:"status"`
}

func (h *Handler) advanceItem(w http.ResponseWriter, r *http.Request) {
	var req advanceReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Intake.Advance(ctx, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(it))
}
