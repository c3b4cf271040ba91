package billing

import (
	"time"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// WebhookEvent describes an account change persisted by webhook reconciliation.
// It is passed to Config.OnReconciled.
type WebhookEvent struct {
	AccountID  string
	CustomerID string

	PreviousPlan menuqr.Plan
	NewPlan      menuqr.Plan

	// Provider is the billing provider name ("stripe")
	Provider string

	// EventID and EventType identify the provider event, e.g. "customer.subscription.updated"
	EventID   string
	EventType string

	// EventTimestamp is when the event occurred at the provider
	EventTimestamp time.Time

	// PeriodEndsAt is the account's entitlement end after the update (nil when unknown or reset)
	PeriodEndsAt *time.Time

	CancellationPending bool
}

// PlanChanged reports whether the event moved the account to another plan.
func (e WebhookEvent) PlanChanged() bool {
	return e.PreviousPlan != e.NewPlan
}
