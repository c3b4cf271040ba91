package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/mihaimyh/menuqr/pkg/billing"
	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// Subscription statuses that count as a live subscription.
const (
	subscriptionStatusActive   = "active"
	subscriptionStatusTrialing = "trialing"
)

func isLive(status string) bool {
	return status == subscriptionStatusActive || status == subscriptionStatusTrialing
}

type customerAssigner interface {
	AssignCustomerID(ctx context.Context, accountID, customerID string) (*menuqr.Account, error)
}

// EnsureCustomer returns the account's Stripe customer id, creating the customer
// on first use. A stored id is never replaced.
func (p *Provider) EnsureCustomer(ctx context.Context, accountID string) (string, error) {
	acc, err := p.config.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if acc.BillingCustomerID != "" {
		return acc.BillingCustomerID, nil
	}

	customerID, err := p.api.CreateCustomer(ctx, accountID, acc.Email)
	if err != nil {
		return "", err
	}

	if assigner, ok := p.config.Accounts.(customerAssigner); ok {
		acc, err = assigner.AssignCustomerID(ctx, accountID, customerID)
		if err != nil {
			return "", fmt.Errorf("assign customer %s: %w", customerID, err)
		}
		return acc.BillingCustomerID, nil
	}
	acc.BillingCustomerID = customerID
	if err := p.config.Accounts.SaveAccount(ctx, acc); err != nil {
		return "", fmt.Errorf("assign customer %s: %w", customerID, err)
	}
	return customerID, nil
}

// CheckoutURL creates a subscription Checkout Session for the price registered under lookupKey.
// Accounts that already have a live subscription get billing.ErrAlreadySubscribed;
// callers should send them to the billing portal.
func (p *Provider) CheckoutURL(ctx context.Context, accountID, lookupKey, successURL, cancelURL string) (string, error) {
	priceID := p.checkoutPrice(lookupKey)
	if priceID == "" {
		return "", fmt.Errorf("%w: %s", billing.ErrUnknownPrice, lookupKey)
	}

	customerID, err := p.EnsureCustomer(ctx, accountID)
	if err != nil {
		return "", err
	}

	subs, err := p.api.Subscriptions(ctx, customerID)
	if err != nil {
		return "", err
	}
	for _, s := range subs {
		if isLive(s.Status) {
			return "", billing.ErrAlreadySubscribed
		}
	}

	url, err := p.api.CreateCheckoutSession(ctx, CheckoutRequest{
		CustomerID: customerID,
		AccountID:  accountID,
		PriceID:    priceID,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("checkout session created",
		menuqr.F("account_id", accountID),
		menuqr.F("customer_id", customerID),
		menuqr.F("lookup_key", lookupKey),
	)
	return url, nil
}

func (p *Provider) checkoutPrice(lookupKey string) string {
	lookupKey = strings.TrimSpace(lookupKey)
	if lookupKey == "" {
		return ""
	}
	if id, ok := p.config.CheckoutPrices[lookupKey]; ok {
		return id
	}
	for k, id := range p.config.CheckoutPrices {
		if strings.EqualFold(k, lookupKey) {
			return id
		}
	}
	return ""
}

// PortalURL creates a Stripe Customer Portal Session for the account.
func (p *Provider) PortalURL(ctx context.Context, accountID, returnURL string) (string, error) {
	acc, err := p.config.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if acc.BillingCustomerID == "" {
		return "", fmt.Errorf("%w: %s", billing.ErrCustomerNotFound, accountID)
	}
	return p.api.CreatePortalSession(ctx, acc.BillingCustomerID, returnURL)
}

// CancelSubscription cancels the account's subscription at Stripe immediately and
// moves the account to the free plan. The period end is left for the
// customer.subscription.deleted event to reset.
func (p *Provider) CancelSubscription(ctx context.Context, accountID string) error {
	acc, err := p.config.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.BillingCustomerID == "" {
		return fmt.Errorf("%w: %s", billing.ErrCustomerNotFound, accountID)
	}

	subID := acc.BillingSubscriptionID
	if subID == "" {
		subs, err := p.api.Subscriptions(ctx, acc.BillingCustomerID)
		if err != nil {
			return err
		}
		for _, s := range subs {
			if isLive(s.Status) {
				subID = s.ID
				break
			}
		}
	}
	if subID == "" {
		return billing.ErrNoSubscription
	}

	if err := p.api.CancelSubscription(ctx, subID); err != nil {
		return err
	}

	unlock, err := p.config.Locker.Lock(ctx, acc.BillingCustomerID)
	if err != nil {
		return err
	}
	defer unlock()

	acc, err = p.lockedAccount(ctx, accountID, acc.BillingCustomerID)
	if err != nil {
		return err
	}
	previous := acc.Plan
	acc.Plan = menuqr.PlanFree
	acc.BillingSubscriptionID = ""
	if err := p.config.Accounts.SaveAccount(ctx, acc); err != nil {
		return fmt.Errorf("save account %s: %w", accountID, err)
	}
	if previous != acc.Plan {
		p.metrics.RecordPlanChange(providerName, string(previous), string(acc.Plan))
	}
	p.logger.Info("subscription canceled",
		menuqr.F("account_id", accountID),
		menuqr.F("customer_id", acc.BillingCustomerID),
		menuqr.F("subscription_id", subID),
	)
	return nil
}
