package orders

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pending() *Order {
	return &Order{ID: "o-1", Status: StatusPending, PaymentStatus: PaymentPending}
}

func TestMarkPaid_OnceOnly(t *testing.T) {
	now := time.Now().UTC()
	o := pending()

	require.NoError(t, o.MarkPaid(ModeProcessor, "pi_123", now))
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "pi_123", o.ProcessorReference)

	assert.ErrorIs(t, o.MarkPaid(ModeStub, "other", now), ErrAlreadyPaid)
	assert.Equal(t, "pi_123", o.ProcessorReference)
	assert.Equal(t, ModeProcessor, o.PaymentMode)
}

func TestCancelledOrderCannotBePaid(t *testing.T) {
	now := time.Now().UTC()
	o := pending()
	require.NoError(t, o.Cancel("payment_processor_failed", now))

	assert.ErrorIs(t, o.MarkPaid(ModeProcessor, "pi", now), ErrInvalidTransition)
	assert.ErrorIs(t, o.AttachSession("cs", now), ErrInvalidTransition)
	assert.ErrorIs(t, o.Cancel("again", now), ErrInvalidTransition)
}

func TestUpsellLineAmount(t *testing.T) {
	u := UpsellLine{PriceAUD: decimal.RequireFromString("19.95"), Quantity: 3}
	assert.Equal(t, "59.85", u.Amount().StringFixed(2))
}
