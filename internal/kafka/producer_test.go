package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-tradein-orders/internal/events"
)

func TestMessage(t *testing.T) {
	env, err := events.New(events.EventOrderPaid, events.Producer, "order-1", events.OrderPaidPayload{OrderID: "order-1"})
	require.NoError(t, err)

	m, err := Message(events.TopicOrderPaid, env)
	require.NoError(t, err)

	assert.Equal(t, events.TopicOrderPaid, m.Topic)
	assert.Equal(t, []byte("order-1"), m.Key)
	require.Len(t, m.Headers, 2)
	assert.Equal(t, "x-event-type", m.Headers[0].Key)
	assert.Equal(t, events.EventOrderPaid, string(m.Headers[0].Value))
	assert.Equal(t, "1", string(m.Headers[1].Value))

	var back events.Envelope
	require.NoError(t, json.Unmarshal(m.Value, &back))
	assert.Equal(t, env.EventID, back.EventID)
}

func TestPublishAfterClose(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, 1, nil)
	p.Close()
	p.Close()

	env, err := events.New(events.EventOrderPaid, events.Producer, "order-1", struct{}{})
	require.NoError(t, err)
	assert.ErrorIs(t, p.Publish(context.Background(), events.TopicOrderPaid, env), ErrProducerClosed)
}
