package menuqr

import (
	"strings"
	"time"
)

// Plan is the subscription plan an account is on.
type Plan string

const (
	// PlanFree is the default plan for accounts without a paid subscription
	PlanFree Plan = "free"
	// PlanPro is the paid plan unlocking menu editing
	PlanPro Plan = "pro"
)

// ParsePlan converts a stored or configured plan name to a Plan.
func ParsePlan(s string) (Plan, error) {
	switch Plan(strings.ToLower(strings.TrimSpace(s))) {
	case PlanFree:
		return PlanFree, nil
	case PlanPro:
		return PlanPro, nil
	default:
		return "", ErrInvalidPlan
	}
}

// Account is the locally persisted subscription record of a restaurant owner.
// It mirrors the billing provider's view and is mutated by webhook reconciliation.
type Account struct {
	ID    string
	Email string

	// BillingCustomerID is the billing provider's customer identifier.
	// Unique per account and immutable once set.
	BillingCustomerID string

	// BillingSubscriptionID is the current provider subscription, if any
	BillingSubscriptionID string

	Plan Plan

	// PeriodEndsAt is the instant after which paid entitlement lapses.
	// It never moves backward as a result of renewal or update events.
	PeriodEndsAt *time.Time

	IsCancellationPending bool

	// PaymentMethodID is the default payment method, for display only
	PaymentMethodID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsEntitled reports whether the account currently has paid access.
// A pro account without a known period end is treated as entitled.
func (a *Account) IsEntitled(now time.Time) bool {
	if a == nil || a.Plan != PlanPro {
		return false
	}
	return a.PeriodEndsAt == nil || now.Before(*a.PeriodEndsAt)
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.PeriodEndsAt != nil {
		t := *a.PeriodEndsAt
		c.PeriodEndsAt = &t
	}
	return &c
}

// Restaurant is a venue owned by an account.
type Restaurant struct {
	ID        string
	OwnerID   string
	Name      string
	Slug      string
	CreatedAt time.Time
}

// Category groups menu items of a restaurant (e.g. "Starters").
type Category struct {
	ID           string
	RestaurantID string
	Name         string
}

// Item is a single dish or drink. Price is in cents.
type Item struct {
	ID          string
	CategoryID  string
	Name        string
	Description string
	Price       int64
}

// Menu is a named selection of categories and items published through a QR code.
type Menu struct {
	ID           string
	RestaurantID string
	Name         string
	CategoryIDs  []string
	ItemIDs      []string
}

// PublicMenu is the read model served to customers scanning a QR code.
type PublicMenu struct {
	Restaurant *Restaurant
	Menus      []PublicMenuSection
}

// PublicMenuSection is one menu with its categories resolved.
type PublicMenuSection struct {
	Menu       *Menu
	Categories []PublicCategory
}

// PublicCategory is a category with the items selected for a menu.
type PublicCategory struct {
	Category *Category
	Items    []*Item
}

// CacheConfig holds account cache configuration
type CacheConfig struct {
	// Enabled determines if caching is active
	Enabled bool

	// AccountTTL is the TTL for cached accounts (default: 30 seconds)
	AccountTTL time.Duration

	// MaxAccounts is the maximum number of accounts to cache (default: 1000)
	MaxAccounts int
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	// Enabled determines if the circuit breaker is active
	Enabled bool

	// FailureThreshold is the number of consecutive failures before opening the circuit (default: 5)
	FailureThreshold int

	// ResetTimeout is the duration to wait before transitioning from Open to Half-Open (default: 30 seconds)
	ResetTimeout time.Duration
}
