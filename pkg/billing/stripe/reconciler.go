package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mihaimyh/menuqr/pkg/billing"
	"github.com/mihaimyh/menuqr/pkg/menuqr"
	"github.com/mihaimyh/menuqr/pkg/notify"
)

// Outcome reports whether an event changed anything. Handled is false for
// events that were acknowledged without effect; Reason then says why.
type Outcome struct {
	Handled bool
	Reason  string
}

// Reasons for unhandled outcomes.
const (
	ReasonUnhandledType    = "unhandled_event_type"
	ReasonMissingCustomer  = "missing_customer"
	ReasonAccountNotFound  = "account_not_found"
	ReasonMissingPeriodEnd = "missing_period_end"
	ReasonDuplicate        = "duplicate_event"
)

// Reconciler applies verified Stripe events to account subscription records.
type Reconciler struct {
	cfg     billing.Config
	api     BillingAPI
	metrics billing.Metrics
	logger  menuqr.Logger
}

// NewReconciler creates a Reconciler. api may be nil, in which case payment
// method lookups fall back to the invoice itself.
func NewReconciler(cfg billing.Config, api BillingAPI) (*Reconciler, error) {
	if cfg.Accounts == nil {
		return nil, billing.ErrProviderNotConfigured
	}
	cfg = cfg.WithDefaults()
	return &Reconciler{
		cfg:     cfg,
		api:     api,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}, nil
}

// notice is an email queued by a handler, sent before the account is persisted.
type notice struct {
	kind string
	msg  notify.Message
}

// Reconcile applies ev under the customer's lock. A returned error means the
// delivery must be retried; the account record is left untouched in that case.
func (r *Reconciler) Reconcile(ctx context.Context, ev *Event) (Outcome, error) {
	if ev.Kind == KindUnhandled {
		r.logger.Debug("ignoring stripe event", menuqr.F("event_type", ev.Type), menuqr.F("event_id", ev.ID))
		return Outcome{Reason: ReasonUnhandledType}, nil
	}

	customerID := ev.CustomerID()
	if customerID == "" {
		r.logger.Warn("stripe event without customer", menuqr.F("event_type", ev.Type), menuqr.F("event_id", ev.ID))
		return Outcome{Reason: ReasonMissingCustomer}, nil
	}

	if ev.Kind == KindInvoicePaymentSucceeded {
		if _, ok := ev.Invoice.PeriodEnd(); !ok {
			r.logger.Warn("invoice without period end",
				menuqr.F("customer_id", customerID),
				menuqr.F("invoice_id", ev.Invoice.ID),
				menuqr.F("event_id", ev.ID),
			)
			return Outcome{Reason: ReasonMissingPeriodEnd}, nil
		}
	}

	unlock, err := r.cfg.Locker.Lock(ctx, customerID)
	if err != nil {
		return Outcome{}, fmt.Errorf("lock customer %s: %w", customerID, err)
	}
	defer unlock()

	// Checked under the lock so concurrent redeliveries of one event see each other.
	if r.cfg.Events != nil && ev.ID != "" {
		seen, err := r.cfg.Events.Seen(ctx, ev.ID)
		if err != nil {
			return Outcome{}, fmt.Errorf("event log: %w", err)
		}
		if seen {
			r.logger.Info("duplicate stripe event", menuqr.F("event_id", ev.ID), menuqr.F("event_type", ev.Type))
			return Outcome{Reason: ReasonDuplicate}, nil
		}
	}

	stored, err := r.cfg.Accounts.FindByBillingCustomerID(ctx, customerID)
	if errors.Is(err, menuqr.ErrAccountNotFound) {
		r.logger.Warn("no account for stripe customer",
			menuqr.F("customer_id", customerID),
			menuqr.F("event_type", ev.Type),
			menuqr.F("event_id", ev.ID),
		)
		return Outcome{Reason: ReasonAccountNotFound}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	acc := stored.Clone()
	var notices []notice
	switch ev.Kind {
	case KindSubscriptionCreated:
		notices = r.applyCreated(ev, acc)
	case KindSubscriptionUpdated:
		notices = r.applyUpdated(ev, acc)
	case KindSubscriptionDeleted:
		notices = r.applyDeleted(acc)
	case KindInvoicePaymentSucceeded:
		notices = r.applyInvoicePaid(ctx, ev, acc)
	}

	if err := r.send(ctx, notices, customerID); err != nil {
		return Outcome{}, err
	}

	if !accountChanged(stored, acc) {
		r.logger.Debug("stripe event left account unchanged",
			menuqr.F("customer_id", customerID),
			menuqr.F("event_type", ev.Type),
		)
		r.markProcessed(ctx, ev)
		return Outcome{Handled: true}, nil
	}

	if err := r.cfg.Accounts.SaveAccount(ctx, acc); err != nil {
		return Outcome{}, fmt.Errorf("save account %s: %w", acc.ID, err)
	}

	if stored.Plan != acc.Plan {
		r.metrics.RecordPlanChange(providerName, string(stored.Plan), string(acc.Plan))
	}
	r.logger.Info("account reconciled",
		menuqr.F("account_id", acc.ID),
		menuqr.F("customer_id", customerID),
		menuqr.F("event_type", ev.Type),
		menuqr.F("plan", string(acc.Plan)),
		menuqr.F("cancellation_pending", acc.IsCancellationPending),
	)

	if r.cfg.OnReconciled != nil {
		err := r.cfg.OnReconciled(ctx, billing.WebhookEvent{
			AccountID:           acc.ID,
			CustomerID:          customerID,
			PreviousPlan:        stored.Plan,
			NewPlan:             acc.Plan,
			Provider:            providerName,
			EventID:             ev.ID,
			EventType:           ev.Type,
			EventTimestamp:      ev.Created,
			PeriodEndsAt:        acc.PeriodEndsAt,
			CancellationPending: acc.IsCancellationPending,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("reconciled callback: %w", err)
		}
	}

	r.markProcessed(ctx, ev)
	return Outcome{Handled: true}, nil
}

func (r *Reconciler) applyCreated(ev *Event, acc *menuqr.Account) []notice {
	sub := ev.Subscription
	acc.Plan = menuqr.PlanPro
	acc.IsCancellationPending = false
	if sub.ID != "" {
		acc.BillingSubscriptionID = sub.ID
	}
	if end, ok := sub.PeriodEnd(); ok {
		t := localTime(end, r.cfg.Location)
		acc.PeriodEndsAt = &t
	} else {
		r.logger.Warn("subscription without period end", menuqr.F("customer_id", sub.Customer.ID), menuqr.F("subscription_id", sub.ID))
	}
	return nil
}

func (r *Reconciler) applyUpdated(ev *Event, acc *menuqr.Account) []notice {
	sub := ev.Subscription
	wasPending := acc.IsCancellationPending

	acc.IsCancellationPending = sub.CancelAtPeriodEnd
	if end, ok := sub.PeriodEnd(); ok {
		acc.PeriodEndsAt = advance(acc.PeriodEndsAt, localTime(end, r.cfg.Location))
	} else {
		r.logger.Warn("subscription without period end", menuqr.F("customer_id", sub.Customer.ID), menuqr.F("subscription_id", sub.ID))
	}
	priceID, lookupKey := sub.PriceKeys()
	acc.Plan = r.cfg.ResolvePlan(priceID, lookupKey)
	if sub.ID != "" {
		acc.BillingSubscriptionID = sub.ID
	}

	if !wasPending && acc.IsCancellationPending {
		return []notice{{
			kind: "cancellation_scheduled",
			msg:  notify.CancellationScheduled(acc.Email, r.formatDate(acc.PeriodEndsAt)),
		}}
	}
	return nil
}

func (r *Reconciler) applyDeleted(acc *menuqr.Account) []notice {
	terminal := acc.Plan == menuqr.PlanFree && acc.PeriodEndsAt == nil &&
		acc.IsCancellationPending && acc.BillingSubscriptionID == ""

	acc.Plan = menuqr.PlanFree
	acc.PeriodEndsAt = nil
	acc.IsCancellationPending = true
	acc.BillingSubscriptionID = ""

	if terminal {
		return nil
	}
	return []notice{{kind: "subscription_ended", msg: notify.SubscriptionEnded(acc.Email)}}
}

func (r *Reconciler) applyInvoicePaid(ctx context.Context, ev *Event, acc *menuqr.Account) []notice {
	in := ev.Invoice
	end, _ := in.PeriodEnd()

	if pm, changed := SyncPaymentMethod(r.resolvePaymentMethod(ctx, in, in.Customer.ID), acc.PaymentMethodID); changed {
		r.logger.Info("payment method updated", menuqr.F("customer_id", in.Customer.ID), menuqr.F("payment_method_id", pm))
		acc.PaymentMethodID = pm
	}
	acc.PeriodEndsAt = advance(acc.PeriodEndsAt, localTime(end, r.cfg.Location))
	acc.IsCancellationPending = false

	switch in.BillingReason {
	case BillingReasonSubscriptionCreate:
		return []notice{{kind: "welcome", msg: notify.Welcome(acc.Email, r.formatDate(acc.PeriodEndsAt))}}
	case BillingReasonSubscriptionCycle:
		return []notice{{kind: "renewal", msg: notify.RenewalConfirmed(acc.Email, r.formatDate(acc.PeriodEndsAt))}}
	}
	return nil
}

// send dispatches notices in order. Rate limiting is logged and tolerated;
// any other failure aborts the handler.
func (r *Reconciler) send(ctx context.Context, notices []notice, customerID string) error {
	for _, n := range notices {
		if n.msg.To == "" {
			r.logger.Warn("account has no email, skipping notification",
				menuqr.F("customer_id", customerID), menuqr.F("notification", n.kind))
			continue
		}
		res := r.cfg.Notifier.Send(ctx, n.msg)
		r.metrics.RecordNotification(n.kind, res.Status.String())
		switch res.Status {
		case notify.StatusSent:
			r.logger.Debug("notification sent", menuqr.F("customer_id", customerID),
				menuqr.F("notification", n.kind), menuqr.F("message_id", res.ID))
		case notify.StatusRateLimited:
			r.logger.Warn("notification rate limited", menuqr.F("customer_id", customerID),
				menuqr.F("notification", n.kind), menuqr.Err(res.Err))
		default:
			return fmt.Errorf("%w: %s: %v", billing.ErrNotificationFailed, n.kind, res.Err)
		}
	}
	return nil
}

func (r *Reconciler) markProcessed(ctx context.Context, ev *Event) {
	if r.cfg.Events == nil || ev.ID == "" {
		return
	}
	if err := r.cfg.Events.MarkProcessed(ctx, ev.ID); err != nil {
		r.logger.Warn("failed to record processed event", menuqr.F("event_id", ev.ID), menuqr.Err(err))
	}
}

func (r *Reconciler) formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(r.cfg.Location).Format(notify.DateLayout)
}

// localTime converts a Stripe timestamp to the billing time zone.
func localTime(sec int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(sec, 0).In(loc)
}

// advance returns the later of stored and candidate. A stored end date never moves backwards.
func advance(stored *time.Time, candidate time.Time) *time.Time {
	if stored == nil || candidate.After(*stored) {
		return &candidate
	}
	return stored
}

func accountChanged(a, b *menuqr.Account) bool {
	if a.Plan != b.Plan ||
		a.IsCancellationPending != b.IsCancellationPending ||
		a.BillingSubscriptionID != b.BillingSubscriptionID ||
		a.PaymentMethodID != b.PaymentMethodID {
		return true
	}
	switch {
	case a.PeriodEndsAt == nil && b.PeriodEndsAt == nil:
		return false
	case a.PeriodEndsAt == nil || b.PeriodEndsAt == nil:
		return true
	}
	return !a.PeriodEndsAt.Equal(*b.PeriodEndsAt)
}
