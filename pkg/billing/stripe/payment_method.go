package stripe

import (
	"context"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// SyncPaymentMethod decides whether the stored payment method must be replaced.
// An empty candidate never overwrites the stored value.
func SyncPaymentMethod(candidate, stored string) (string, bool) {
	if candidate == "" || candidate == stored {
		return stored, false
	}
	return candidate, true
}

// resolvePaymentMethod walks the invoice's payment method sources in order:
// the subscription's default, the payment intent's, then the invoice's own pm_ reference.
// Lookup failures are logged and treated as absent.
func (r *Reconciler) resolvePaymentMethod(ctx context.Context, in *Invoice, customerID string) string {
	if r.api != nil {
		if subID := in.SubscriptionID(); subID != "" {
			pm, err := r.api.SubscriptionPaymentMethod(ctx, subID)
			if err != nil {
				r.logger.Warn("subscription payment method lookup failed",
					menuqr.F("customer_id", customerID),
					menuqr.F("subscription_id", subID),
					menuqr.Err(err),
				)
			} else if pm != "" {
				return pm
			}
		}
		if piID := in.PaymentIntentID(); piID != "" {
			pm, err := r.api.PaymentIntentPaymentMethod(ctx, piID)
			if err != nil {
				r.logger.Warn("payment intent lookup failed",
					menuqr.F("customer_id", customerID),
					menuqr.F("payment_intent_id", piID),
					menuqr.Err(err),
				)
			} else if pm != "" {
				return pm
			}
		}
	}
	return in.OwnPaymentMethod()
}
