package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func listedItem() *Item {
	return &Item{ID: "item-1", Status: StatusListed, Listed: true, CosmeticGrade: "A", SourceType: SourceTradeIn}
}

func TestReserveSellLifecycle(t *testing.T) {
	it := listedItem()

	require.NoError(t, it.Reserve("order-1", now))
	assert.Equal(t, StatusReserved, it.Status)
	assert.False(t, it.Listed)
	assert.Equal(t, "order-1", it.OrderID)

	require.NoError(t, it.Sell("order-1", now))
	assert.Equal(t, StatusSold, it.Status)
	assert.False(t, it.Listed)
	assert.NotNil(t, it.SoldAt)
}

func TestReserve_FailsClosedUnlessListed(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		listed bool
	}{
		{name: "already reserved", status: StatusReserved},
		{name: "sold", status: StatusSold},
		{name: "received", status: StatusReceived},
		{name: "listed flag cleared", status: StatusListed, listed: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			it := &Item{ID: "x", Status: tc.status, Listed: tc.listed}
			err := it.Reserve("order-1", now)
			assert.ErrorIs(t, err, ErrNotListed)
			assert.Equal(t, tc.status, it.Status)
		})
	}
}

func TestSell_RequiresReservationByOrder(t *testing.T) {
	it := listedItem()
	require.NoError(t, it.Reserve("order-1", now))

	assert.ErrorIs(t, it.Sell("order-2", now), ErrNotReserved)
	assert.Equal(t, StatusReserved, it.Status)

	listed := listedItem()
	assert.ErrorIs(t, listed.Sell("order-1", now), ErrNotReserved)
}

func TestRelease_ReturnsItemToListed(t *testing.T) {
	it := listedItem()
	require.NoError(t, it.Reserve("order-1", now))

	require.NoError(t, it.Release("order-1", now))
	assert.Equal(t, StatusListed, it.Status)
	assert.True(t, it.Listed)
	assert.Empty(t, it.OrderID)
	assert.Nil(t, it.ReservedAt)
}

func TestMarkReturned(t *testing.T) {
	it := listedItem()
	require.NoError(t, it.Reserve("order-1", now))
	require.NoError(t, it.Sell("order-1", now))

	require.NoError(t, it.MarkReturned("cracked screen", "", "C", now))
	assert.Equal(t, StatusReceived, it.Status)
	assert.False(t, it.Listed)
	assert.Equal(t, SourceReturn, it.SourceType)
	assert.Equal(t, "C", it.CosmeticGrade)
	require.NotNil(t, it.Return)
	assert.Equal(t, "order-1", it.Return.OrderID)
	assert.Equal(t, "A", it.Return.PriorGrade)
	assert.Equal(t, "cracked screen", it.Return.Reason)
}

func TestMarkReturned_RejectsForeignOrder(t *testing.T) {
	it := listedItem()
	require.NoError(t, it.Reserve("order-1", now))
	require.NoError(t, it.Sell("order-1", now))

	assert.ErrorIs(t, it.MarkReturned("", "order-2", "", now), ErrInvalidState)
	assert.Equal(t, StatusSold, it.Status)
	assert.Nil(t, it.Return)

	require.NoError(t, it.MarkReturned("", "order-1", "", now))
	assert.Equal(t, "order-1", it.Return.OrderID)
}

func TestMarkReturned_RejectsUnsold(t *testing.T) {
	it := listedItem()
	assert.ErrorIs(t, it.MarkReturned("", "", "", now), ErrNotSold)
	assert.Equal(t, StatusListed, it.Status)
}

func TestAdvance_StaffPipeline(t *testing.T) {
	it := &Item{ID: "x", Status: StatusReceived}
	require.NoError(t, it.Advance(StatusInspecting, now))
	require.NoError(t, it.Advance(StatusRefurbishing, now))
	require.NoError(t, it.Advance(StatusListed, now))
	assert.True(t, it.Listed)

	assert.ErrorIs(t, it.Advance(StatusListed, now), ErrInvalidState)
	assert.ErrorIs(t, it.Advance(StatusSold, now), ErrInvalidState)

	require.NoError(t, it.Reserve("order-1", now))
	assert.ErrorIs(t, it.Advance(StatusListed, now), ErrInvalidState, "reservations are released by checkout only")
}

func TestCanTransition_ClosedSet(t *testing.T) {
	assert.True(t, CanTransition(StatusListed, StatusReserved))
	assert.True(t, CanTransition(StatusSold, StatusReceived))
	assert.False(t, CanTransition(StatusListed, StatusSold))
	assert.False(t, CanTransition(StatusReceived, StatusListed))
	assert.False(t, CanTransition(StatusSold, StatusListed))
}

func TestNormalizeSerial(t *testing.T) {
	assert.Equal(t, "abc123", NormalizeSerial("  ABC123 "))
}
