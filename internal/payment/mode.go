// Package payment adapts checkout to an external hosted payment processor:
// building checkout sessions, and verifying and decoding the signed
// completion events it sends back.
package payment

import (
	"errors"
	"fmt"
)

// Mode is chosen from configuration before any checkout runs. A processor
// failure never silently becomes a stub completion unless StubFallback is set.
type Mode string

const (
	ModeStub      Mode = "stub"
	ModeProcessor Mode = "processor"
)

type Config struct {
	Mode          Mode
	APIBase       string
	APIKey        string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	// StubFallback restores the legacy behaviour of completing an order
	// without payment when the processor call fails.
	StubFallback bool
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeStub:
		return nil
	case ModeProcessor:
	default:
		return fmt.Errorf("PAYMENT_MODE %q: want stub or processor", c.Mode)
	}
	var missing []error
	if c.APIBase == "" {
		missing = append(missing, errors.New("PAYMENT_API_BASE is required"))
	}
	if c.APIKey == "" {
		missing = append(missing, errors.New("PAYMENT_API_KEY is required"))
	}
	if c.WebhookSecret == "" {
		missing = append(missing, errors.New("PAYMENT_WEBHOOK_SECRET is required"))
	}
	if len(missing) > 0 {
		return fmt.Errorf("processor mode: %w", errors.Join(missing...))
	}
	return nil
}
