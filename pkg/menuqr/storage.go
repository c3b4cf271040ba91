package menuqr

import (
	"context"
	"time"
)

// AccountStore persists account subscription records.
// Implementations must make a saved account durable before SaveAccount returns.
type AccountStore interface {
	// GetAccount retrieves an account by its internal id.
	// Returns ErrAccountNotFound if it does not exist.
	GetAccount(ctx context.Context, accountID string) (*Account, error)

	// FindByBillingCustomerID retrieves the account owning a billing customer id.
	// Returns ErrAccountNotFound if no account matches.
	FindByBillingCustomerID(ctx context.Context, customerID string) (*Account, error)

	// SaveAccount creates or replaces an account.
	// Returns ErrCustomerIDImmutable when a different, already set customer id would be overwritten,
	// and ErrDuplicateCustomerID when another account owns the customer id.
	SaveAccount(ctx context.Context, account *Account) error

	// ListExpired returns pro accounts whose PeriodEndsAt is before now, at most limit entries.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Account, error)
}

// CatalogStore persists restaurants and their menus.
type CatalogStore interface {
	SaveRestaurant(ctx context.Context, r *Restaurant) error
	// GetRestaurant returns ErrNotFound if it does not exist
	GetRestaurant(ctx context.Context, id string) (*Restaurant, error)
	ListRestaurants(ctx context.Context, ownerID string) ([]*Restaurant, error)
	// DeleteRestaurant removes the restaurant with its categories, items and menus
	DeleteRestaurant(ctx context.Context, id string) error

	SaveCategory(ctx context.Context, c *Category) error
	GetCategory(ctx context.Context, id string) (*Category, error)
	ListCategories(ctx context.Context, restaurantID string) ([]*Category, error)

	SaveItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, id string) (*Item, error)
	ListItems(ctx context.Context, categoryID string) ([]*Item, error)

	SaveMenu(ctx context.Context, m *Menu) error
	GetMenu(ctx context.Context, id string) (*Menu, error)
	ListMenus(ctx context.Context, restaurantID string) ([]*Menu, error)
	DeleteMenu(ctx context.Context, id string) error
}

// CheckCustomerIDChange enforces the immutability rule for billing customer ids.
// Stores call it with the currently stored account (nil when new) and the one being saved.
func CheckCustomerIDChange(stored, next *Account) error {
	if stored == nil || stored.BillingCustomerID == "" {
		return nil
	}
	if next.BillingCustomerID != stored.BillingCustomerID {
		return ErrCustomerIDImmutable
	}
	return nil
}
