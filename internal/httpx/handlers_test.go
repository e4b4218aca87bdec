package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-tradein-orders/internal/checkout"
	"github.com/ariefcatur/go-tradein-orders/internal/intake"
	"github.com/ariefcatur/go-tradein-orders/internal/inventory"
	"github.com/ariefcatur/go-tradein-orders/internal/metrics"
	"github.com/ariefcatur/go-tradein-orders/internal/orders"
	"github.com/ariefcatur/go-tradein-orders/internal/payment"
	"github.com/ariefcatur/go-tradein-orders/internal/pricing"
	"github.com/ariefcatur/go-tradein-orders/internal/reconcile"
	"github.com/ariefcatur/go-tradein-orders/internal/returns"
	"github.com/ariefcatur/go-tradein-orders/internal/store"
	"github.com/ariefcatur/go-tradein-orders/internal/store/memstore"
)

const webhookSecret = "whsec_http"

type sessions struct{}

func (sessions) CreateSession(_ context.Context, req payment.SessionRequest) (payment.Session, error) {
	return payment.Session{ID: "cs_" + req.OrderID, URL: "https://pay.example/" + req.OrderID}, nil
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]orders.Status
}

func (c *mapCache) Status(_ context.Context, id string) (orders.Status, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.m[id]
	return s, ok, nil
}

func (c *mapCache) SetStatus(_ context.Context, id string, s orders.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = map[string]orders.Status{}
	}
	c.m[id] = s
	return nil
}

type env struct {
	srv   *httptest.Server
	store *memstore.Store
	cache *mapCache
}

func newEnv(t *testing.T, mode payment.Mode) *env {
	t.Helper()
	s := memstore.New()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cache := &mapCache{}

	var opts []checkout.Option
	opts = append(opts, checkout.WithMetrics(m), checkout.WithStatusCache(cache))
	if mode == payment.ModeProcessor {
		opts = append(opts, checkout.WithProcessor(payment.Config{Mode: payment.ModeProcessor}, sessions{}))
	}
	rates := pricing.RateTable{DefaultRate: decimal.NewFromInt(10)}

	h := &Handler{
		Checkout:  checkout.New(s, rates, opts...),
		Reconcile: reconcile.New(s, reconcile.WithStatusCache(cache), reconcile.WithWebhookSecret(webhookSecret, payment.DefaultTolerance)),
		Returns:   returns.New(s, nil, nil, m),
		Intake:    intake.New(s, nil),
		Store:     s,
		Cache:     cache,
	}
	r := NewRouter(nil, m, reg)
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &env{srv: srv, store: s, cache: cache}
}

func (e *env) post(t *testing.T, path string, body any, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case []byte:
		raw = b
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return do(t, req)
}

func (e *env) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	require.NoError(t, err)
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// listItem receives an item and walks it to listed through the API.
func (e *env) listItem(t *testing.T, serial string) string {
	t.Helper()
	resp, body := e.post(t, "/inventory", map[string]any{
		"serial": serial, "category": "Phone", "sellPriceAUD": "250.00", "sourceType": "trade-in", "cosmeticGrade": "B",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	id := body["id"].(string)
	for _, s := range []string{"inspecting", "refurbishing", "listed"} {
		resp, body = e.post(t, "/inventory/"+id+"/status", map[string]string{"status": s})
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
	}
	assert.Equal(t, true, body["listed"])
	return id
}

func checkoutBody(ids ...string) map[string]any {
	items := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		items = append(items, map[string]string{"inventoryId": id})
	}
	return map[string]any{
		"items":         items,
		"customerName":  "Sam Taylor",
		"customerEmail": "sam@example.com",
		"shippingAddress": map[string]string{
			"line1": "1 George St", "city": "Sydney", "region": "NSW", "postcode": "2000", "country": "AU",
		},
	}
}

func TestCheckout_StubFlow(t *testing.T) {
	e := newEnv(t, payment.ModeStub)
	id := e.listItem(t, "SN-1")

	resp, body := e.post(t, "/checkout", checkoutBody(id))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.EqualValues(t, 1001, body["orderNumber"])
	assert.Equal(t, "stub", body["paymentMode"])
	orderID := body["orderId"].(string)

	resp, body = e.post(t, "/checkout", checkoutBody(id))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, []any{id}, body["items"])

	resp, body = e.get(t, "/orders/"+orderID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paid", body["status"])
}

func TestCheckout_BadRequests(t *testing.T) {
	e := newEnv(t, payment.ModeStub)

	resp, _ := e.post(t, "/checkout", []byte(`{not json`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := checkoutBody("x")
	delete(body, "customerEmail")
	resp, out := e.post(t, "/checkout", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["error"], "customerEmail")
}

func TestProcessorFlow_WebhookCompletesOrder(t *testing.T) {
	e := newEnv(t, payment.ModeProcessor)
	id := e.listItem(t, "SN-1")

	resp, body := e.post(t, "/checkout", checkoutBody(id))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	orderID := body["orderId"].(string)
	assert.Equal(t, "https://pay.example/"+orderID, body["url"])

	_, body = e.get(t, "/orders/"+orderID)
	assert.Equal(t, "pending", body["status"])

	event := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_intent":"pi_1","client_reference_id":"` + orderID + `"}}}`)

	resp, _ = e.post(t, "/webhooks/payment", event, payment.SignatureHeader, payment.Sign("wrong", time.Now(), event))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for i := 0; i < 2; i++ {
		resp, body = e.post(t, "/webhooks/payment", event, payment.SignatureHeader, payment.Sign(webhookSecret, time.Now(), event))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["received"])
	}

	_, body = e.get(t, "/orders/"+orderID)
	assert.Equal(t, "paid", body["status"])

	require.NoError(t, e.store.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		it, err := tx.Item(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, inventory.StatusSold, it.Status)
		return nil
	}))
}

func TestWebhook_AcknowledgesIgnoredEvents(t *testing.T) {
	e := newEnv(t, payment.ModeProcessor)
	event := []byte(`{"id":"evt_9","type":"customer.created","data":{"object":{}}}`)
	resp, body := e.post(t, "/webhooks/payment", event, payment.SignatureHeader, payment.Sign(webhookSecret, time.Now(), event))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])
}

func TestReturns(t *testing.T) {
	e := newEnv(t, payment.ModeStub)
	id := e.listItem(t, "SN-1")

	resp, _ := e.post(t, "/returns", map[string]string{"inventoryId": id})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "listed items cannot be returned")

	resp, _ = e.post(t, "/returns", map[string]string{"inventoryId": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := e.post(t, "/checkout", checkoutBody(id))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	resp, body = e.post(t, "/returns", map[string]string{"inventoryId": id, "cosmeticGrade": "C", "returnReason": "changed mind"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "received", body["status"])
	assert.Equal(t, false, body["listed"])
	assert.Equal(t, "return", body["sourceType"])
	assert.Equal(t, "C", body["cosmeticGrade"])
}

func TestInventory_Errors(t *testing.T) {
	e := newEnv(t, payment.ModeStub)
	e.listItem(t, "SN-1")

	resp, _ := e.post(t, "/inventory", map[string]any{"serial": "sn-1", "category": "Phone", "sourceType": "bulk"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = e.post(t, "/inventory/ghost/status", map[string]string{"status": "inspecting"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetOrder_NotFound(t *testing.T) {
	e := newEnv(t, payment.ModeStub)
	resp, _ := e.get(t, "/orders/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t, payment.ModeStub)

	resp, err := http.Get(e.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, _ = e.post(t, "/checkout", []byte(`{}`))

	resp, err = http.Get(e.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	text := buf.String()
	assert.True(t, strings.Contains(text, `tradein_checkout_requests_total{outcome="validation"} 1`), text)
	assert.Contains(t, text, `route="/checkout"`)
}
