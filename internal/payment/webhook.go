package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureHeader = "Payment-Signature"
	// EventCheckoutCompleted is the only event type that finalizes an order.
	EventCheckoutCompleted = "checkout.session.completed"

	DefaultTolerance = 5 * time.Minute
)

var (
	ErrBadSignature = errors.New("payment: invalid webhook signature")
	ErrStale        = errors.New("payment: webhook timestamp outside tolerance")
)

func computeMAC(secret string, ts int64, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// Sign renders the signature header value for body at ts.
func Sign(secret string, ts time.Time, body []byte) string {
	t := ts.Unix()
	return fmt.Sprintf("t=%d,v1=%s", t, hex.EncodeToString(computeMAC(secret, t, body)))
}

// Verify checks header against body. Any v1 entry may match, which lets the
// processor roll secrets.
func Verify(header string, body []byte, secret string, now time.Time, tolerance time.Duration) error {
	if secret == "" {
		return ErrBadSignature
	}
	var (
		ts   int64
		sigs [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrBadSignature
			}
			ts = n
		case "v1":
			b, err := hex.DecodeString(v)
			if err != nil {
				continue
			}
			sigs = append(sigs, b)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrBadSignature
	}
	if tolerance > 0 {
		d := now.Sub(time.Unix(ts, 0))
		if d < 0 {
			d = -d
		}
		if d > tolerance {
			return ErrStale
		}
	}
	want := computeMAC(secret, ts, body)
	for _, s := range sigs {
		if hmac.Equal(s, want) {
			return nil
		}
	}
	return ErrBadSignature
}

type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object SessionObject `json:"object"`
	} `json:"data"`
}

type SessionObject struct {
	ID                string            `json:"id"`
	PaymentIntent     string            `json:"payment_intent"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("decode webhook event: %w", err)
	}
	return ev, nil
}

// Completion extracts the order id and processor reference of a completed
// checkout. ok is false for other event types or when no order id is present.
func (ev Event) Completion() (orderID, reference string, ok bool) {
	if ev.Type != EventCheckoutCompleted {
		return "", "", false
	}
	obj := ev.Data.Object
	orderID = obj.Metadata["orderId"]
	if orderID == "" {
		orderID = obj.ClientReferenceID
	}
	reference = obj.PaymentIntent
	if reference == "" {
		reference = obj.ID
	}
	return orderID, reference, orderID != ""
}
