package reconcile

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tradein-orders/internal/events"
	"github.com/ariefcatur/go-tradein-orders/internal/logging"
)

// HandleMessage consumes payment.completed envelopes. A nil return commits
// the offset, so malformed messages return nil after logging; store failures
// return the error and the consumer retries the message before moving past it.
func (l *Listener) HandleMessage(ctx context.Context, m kafkago.Message) error {
	log := logging.FromContext(ctx, l.log).With(
		zap.String("topic", m.Topic),
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset),
	)

	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Warn("reconcile_anomaly", zap.String("reason", "malformed_envelope"), zap.Error(err))
		l.met.ReconcileEvents.WithLabelValues(SourceKafka, string(OutcomeAnomaly)).Inc()
		return nil
	}
	if env.EventType != events.EventPaymentCompleted {
		l.met.ReconcileEvents.WithLabelValues(SourceKafka, string(OutcomeIgnored)).Inc()
		return nil
	}

	dkey := "kafka:" + env.EventID
	if env.EventID != "" && l.seen(ctx, dkey) {
		l.met.ReconcileEvents.WithLabelValues(SourceKafka, string(OutcomeDuplicate)).Inc()
		return nil
	}

	p, err := events.Decode[events.PaymentCompletedPayload](env.Payload)
	if err != nil {
		log.Warn("reconcile_anomaly", zap.String("reason", "malformed_payload"), zap.String("event_id", env.EventID), zap.Error(err))
		l.met.ReconcileEvents.WithLabelValues(SourceKafka, string(OutcomeAnomaly)).Inc()
		return nil
	}

	if _, err := l.OnPaymentCompleted(ctx, SourceKafka, p.OrderID, p.ProcessorReference); err != nil {
		return err
	}
	if env.EventID != "" {
		l.mark(ctx, dkey)
	}
	return nil
}
