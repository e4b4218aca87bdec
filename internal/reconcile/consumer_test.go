package reconcile

import (
	"context"
	"encoding/json"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-tradein-orders/internal/events"
	"github.com/ariefcatur/go-tradein-orders/internal/orders"
	"github.com/ariefcatur/go-tradein-orders/internal/store/memstore"
)

func completionMessage(t *testing.T, orderID string) kafkago.Message {
	t.Helper()
	env, err := events.New(events.EventPaymentCompleted, "payment-relay", orderID, events.PaymentCompletedPayload{
		OrderID: orderID, ProcessorReference: "pi_9",
	})
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Topic: events.TopicPaymentCompleted, Key: events.PartitionKey(orderID), Value: b}
}

func TestHandleMessage_AppliesCompletion(t *testing.T) {
	s := memstore.New()
	seedPending(t, s, "order-1", "item-1")
	d := &memDedup{}
	l := New(s, WithDeduper(d))

	m := completionMessage(t, "order-1")
	require.NoError(t, l.HandleMessage(context.Background(), m))

	o := getOrder(t, s, "order-1")
	assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "pi_9", o.ProcessorReference)
	assert.Len(t, d.keys, 1)

	require.NoError(t, l.HandleMessage(context.Background(), m), "replays are committed")
}

func TestHandleMessage_CommitsMalformedMessages(t *testing.T) {
	l := New(memstore.New())

	for _, v := range []string{
		`garbage`,
		`{"event_id":"e1","event_type":"OrderPaid","payload":{}}`,
		`{"event_id":"e2","event_type":"PaymentCompleted","payload":"oops"}`,
	} {
		assert.NoError(t, l.HandleMessage(context.Background(), kafkago.Message{Value: []byte(v)}), v)
	}
}

func TestHandleMessage_StoreFailureIsRedelivered(t *testing.T) {
	l := New(failingStore{})
	assert.Error(t, l.HandleMessage(context.Background(), completionMessage(t, "order-1")))
}
