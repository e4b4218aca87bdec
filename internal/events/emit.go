package events

import (
	"context"

	"go.uber.org/zap"
)

// Producer identifies this service in envelopes.
const Producer = "tradein-orders"

// Emit publishes after commit. Failures are logged and never undo the
// committed state; consumers rebuild from the store when they miss events.
func Emit(ctx context.Context, p Publisher, log *zap.Logger, topic, eventType, orderID string, payload any) {
	if p == nil {
		return
	}
	env, err := New(eventType, Producer, orderID, payload)
	if err == nil {
		err = p.Publish(ctx, topic, env)
	}
	if err != nil && log != nil {
		log.Warn("event_publish_failed",
			zap.String("topic", topic),
			zap.String("event_type", eventType),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}
