package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-tradein-orders/internal/payment"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, payment.ModeStub, cfg.Payment.Mode)
	assert.False(t, cfg.Payment.StubFallback)
	assert.Equal(t, 5, cfg.TxMaxAttempts)
	assert.Zero(t, cfg.ReservationTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "10", cfg.Shipping.DefaultRate.String())
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SHIPPING_RATES", "Phone:10,Tablet:15")
	t.Setenv("SHIPPING_FREE_THRESHOLD", "200")
	t.Setenv("RESERVATION_TTL", "30m")
	t.Setenv("PAYMENT_MODE", "processor")
	t.Setenv("PAYMENT_API_BASE", "https://pay.example")
	t.Setenv("PAYMENT_API_KEY", "sk_test")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec")
	t.Setenv("PAYMENT_STUB_FALLBACK", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "15", cfg.Shipping.Rates["Tablet"].String())
	assert.Equal(t, "200", cfg.Shipping.FreeThreshold.String())
	assert.Equal(t, 30*time.Minute, cfg.ReservationTTL)
	assert.Equal(t, payment.ModeProcessor, cfg.Payment.Mode)
	assert.True(t, cfg.Payment.StubFallback)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "processor without credentials", env: map[string]string{"PAYMENT_MODE": "processor"}},
		{name: "unknown payment mode", env: map[string]string{"PAYMENT_MODE": "maybe"}},
		{name: "bad attempts", env: map[string]string{"TX_MAX_ATTEMPTS": "x"}},
		{name: "zero attempts", env: map[string]string{"TX_MAX_ATTEMPTS": "0"}},
		{name: "bad ttl", env: map[string]string{"RESERVATION_TTL": "soon"}},
		{name: "bad rates", env: map[string]string{"SHIPPING_RATES": "Phone"}},
		{name: "bad driver", env: map[string]string{"STORE_DRIVER": "sqlite"}},
		{name: "bad bool", env: map[string]string{"PAYMENT_STUB_FALLBACK": "perhaps"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
