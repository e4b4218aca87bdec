package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the processor's REST API.
type Client struct {
	base string
	key  string
	http *http.Client
}

func NewClient(base, key string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimRight(base, "/"), key: key, http: hc}
}

var _ Processor = (*Client)(nil)

// CreateSession posts the session; the order id doubles as idempotency key so
// a retried hand-off never opens a second session for the same order.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Session{}, fmt.Errorf("encode session: %w", err)
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return Session{}, err
	}
	hr.Header.Set("Authorization", "Bearer "+c.key)
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Idempotency-Key", "checkout-"+req.OrderID)

	resp, err := c.http.Do(hr)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Session{}, fmt.Errorf("read session response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return Session{}, fmt.Errorf("create session: processor returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if s.ID == "" || s.URL == "" {
		return Session{}, fmt.Errorf("create session: response missing id or url")
	}
	return s, nil
}
