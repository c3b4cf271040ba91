package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/mihaimyh/menuqr/pkg/billing"
	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// SyncAccount pulls the customer's live subscriptions from Stripe and applies them
// to the account. The stored period end never moves backwards while the account stays pro.
func (p *Provider) SyncAccount(ctx context.Context, accountID string) (menuqr.Plan, error) {
	startTime := time.Now()
	plan, err := p.syncAccount(ctx, accountID)
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordAccountSync(providerName, status)
	p.metrics.RecordAccountSyncDuration(providerName, time.Since(startTime))
	return plan, err
}

func (p *Provider) syncAccount(ctx context.Context, accountID string) (menuqr.Plan, error) {
	acc, err := p.config.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return menuqr.PlanFree, err
	}
	if acc.BillingCustomerID == "" {
		return acc.Plan, fmt.Errorf("%w: %s", billing.ErrCustomerNotFound, accountID)
	}
	customerID := acc.BillingCustomerID

	subs, err := p.api.Subscriptions(ctx, customerID)
	if err != nil {
		return acc.Plan, err
	}
	best := p.bestSubscription(subs)

	unlock, err := p.config.Locker.Lock(ctx, customerID)
	if err != nil {
		return acc.Plan, err
	}
	defer unlock()

	stored, err := p.lockedAccount(ctx, accountID, customerID)
	if err != nil {
		return acc.Plan, err
	}
	next := stored.Clone()
	if best == nil {
		next.Plan = menuqr.PlanFree
		next.PeriodEndsAt = nil
		next.BillingSubscriptionID = ""
	} else {
		next.Plan = p.config.ResolvePlan(best.PriceID, best.LookupKey)
		next.BillingSubscriptionID = best.ID
		next.IsCancellationPending = best.CancelAtPeriodEnd
		if best.CurrentPeriodEnd > 0 {
			next.PeriodEndsAt = advance(next.PeriodEndsAt, localTime(best.CurrentPeriodEnd, p.config.Location))
		}
		if pm, changed := SyncPaymentMethod(best.PaymentMethodID, next.PaymentMethodID); changed {
			next.PaymentMethodID = pm
		}
	}

	if !accountChanged(stored, next) {
		return next.Plan, nil
	}
	if err := p.config.Accounts.SaveAccount(ctx, next); err != nil {
		return stored.Plan, fmt.Errorf("save account %s: %w", accountID, err)
	}
	if stored.Plan != next.Plan {
		p.metrics.RecordPlanChange(providerName, string(stored.Plan), string(next.Plan))
	}
	p.logger.Info("account synced from stripe",
		menuqr.F("account_id", accountID),
		menuqr.F("customer_id", customerID),
		menuqr.F("plan", string(next.Plan)),
	)
	return next.Plan, nil
}

// lockedAccount reads the account from storage, bypassing any read cache.
// Callers must hold the lock for customerID.
func (p *Provider) lockedAccount(ctx context.Context, accountID, customerID string) (*menuqr.Account, error) {
	acc, err := p.config.Accounts.FindByBillingCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if acc.ID != accountID {
		return nil, fmt.Errorf("%w: customer %s belongs to account %s", billing.ErrCustomerNotFound, customerID, acc.ID)
	}
	return acc, nil
}

// bestSubscription picks the live subscription that maps to pro with the latest
// period end, else any live subscription.
func (p *Provider) bestSubscription(subs []SubscriptionSummary) *SubscriptionSummary {
	var best *SubscriptionSummary
	bestIsPro := false
	for i := range subs {
		s := &subs[i]
		if !isLive(s.Status) {
			continue
		}
		isPro := p.config.ResolvePlan(s.PriceID, s.LookupKey) == menuqr.PlanPro
		switch {
		case best == nil,
			isPro && !bestIsPro,
			isPro == bestIsPro && s.CurrentPeriodEnd > best.CurrentPeriodEnd:
			best, bestIsPro = s, isPro
		}
	}
	return best
}
