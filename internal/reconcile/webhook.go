package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-tradein-orders/internal/logging"
	"github.com/ariefcatur/go-tradein-orders/internal/payment"
)

// HandleWebhook verifies and applies a processor webhook. payment.ErrBadSignature
// and payment.ErrStale are the only rejections; other events are acknowledged.
func (l *Listener) HandleWebhook(ctx context.Context, signature string, body []byte) (Outcome, error) {
	log := logging.FromContext(ctx, l.log)
	if err := payment.Verify(signature, body, l.webhookSecret, l.now(), l.tolerance); err != nil {
		log.Warn("webhook_rejected", zap.Error(err))
		return "", err
	}

	ev, err := payment.ParseEvent(body)
	if err != nil {
		log.Warn("reconcile_anomaly", zap.String("reason", "malformed_event"), zap.Error(err))
		l.met.ReconcileEvents.WithLabelValues(SourceWebhook, string(OutcomeAnomaly)).Inc()
		return OutcomeAnomaly, nil
	}

	dkey := "webhook:" + ev.ID
	if ev.ID != "" && l.seen(ctx, dkey) {
		l.met.ReconcileEvents.WithLabelValues(SourceWebhook, string(OutcomeDuplicate)).Inc()
		return OutcomeDuplicate, nil
	}

	orderID, ref, ok := ev.Completion()
	if !ok {
		if ev.Type == payment.EventCheckoutCompleted {
			log.Warn("reconcile_anomaly", zap.String("reason", "missing_order_id"), zap.String("event_id", ev.ID))
			l.met.ReconcileEvents.WithLabelValues(SourceWebhook, string(OutcomeAnomaly)).Inc()
			return OutcomeAnomaly, nil
		}
		log.Debug("webhook_ignored", zap.String("event_type", ev.Type), zap.String("event_id", ev.ID))
		l.met.ReconcileEvents.WithLabelValues(SourceWebhook, string(OutcomeIgnored)).Inc()
		return OutcomeIgnored, nil
	}

	out, err := l.OnPaymentCompleted(ctx, SourceWebhook, orderID, ref)
	if err != nil {
		return "", err
	}
	if ev.ID != "" {
		l.mark(ctx, dkey)
	}
	return out, nil
}
