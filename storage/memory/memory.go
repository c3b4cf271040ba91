// Package memory provides in-memory implementations of the menuqr storage interfaces.
// It is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// Storage implements menuqr.AccountStore, menuqr.CatalogStore and menuqr.EventLog using maps.
type Storage struct {
	mu         sync.RWMutex
	accounts   map[string]*menuqr.Account
	byCustomer map[string]string
	events     map[string]time.Time

	restaurants map[string]*menuqr.Restaurant
	categories  map[string]*menuqr.Category
	items       map[string]*menuqr.Item
	menus       map[string]*menuqr.Menu
}

var (
	_ menuqr.AccountStore = (*Storage)(nil)
	_ menuqr.CatalogStore = (*Storage)(nil)
	_ menuqr.EventLog     = (*Storage)(nil)
)

// New creates a new in-memory storage adapter
func New() *Storage {
	s := &Storage{}
	s.Clear()
	return s
}

// Clear removes all data
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[string]*menuqr.Account)
	s.byCustomer = make(map[string]string)
	s.events = make(map[string]time.Time)
	s.restaurants = make(map[string]*menuqr.Restaurant)
	s.categories = make(map[string]*menuqr.Category)
	s.items = make(map[string]*menuqr.Item)
	s.menus = make(map[string]*menuqr.Menu)
}

// GetAccount implements menuqr.AccountStore
func (s *Storage) GetAccount(_ context.Context, accountID string) (*menuqr.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, menuqr.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

// FindByBillingCustomerID implements menuqr.AccountStore
func (s *Storage) FindByBillingCustomerID(_ context.Context, customerID string) (*menuqr.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCustomer[customerID]
	if !ok || customerID == "" {
		return nil, menuqr.ErrAccountNotFound
	}
	return s.accounts[id].Clone(), nil
}

// SaveAccount implements menuqr.AccountStore
func (s *Storage) SaveAccount(_ context.Context, acc *menuqr.Account) error {
	if acc == nil || acc.ID == "" {
		return fmt.Errorf("%w: account id is required", menuqr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := menuqr.CheckCustomerIDChange(s.accounts[acc.ID], acc); err != nil {
		return err
	}
	if acc.BillingCustomerID != "" {
		if owner, ok := s.byCustomer[acc.BillingCustomerID]; ok && owner != acc.ID {
			return menuqr.ErrDuplicateCustomerID
		}
		s.byCustomer[acc.BillingCustomerID] = acc.ID
	}
	s.accounts[acc.ID] = acc.Clone()
	return nil
}

// ListExpired implements menuqr.AccountStore
func (s *Storage) ListExpired(_ context.Context, now time.Time, limit int) ([]*menuqr.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*menuqr.Account
	for _, acc := range s.accounts {
		if acc.Plan == menuqr.PlanPro && acc.PeriodEndsAt != nil && acc.PeriodEndsAt.Before(now) {
			out = append(out, acc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodEndsAt.Before(*out[j].PeriodEndsAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Seen implements menuqr.EventLog
func (s *Storage) Seen(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.events[eventID]
	return ok, nil
}

// MarkProcessed implements menuqr.EventLog
func (s *Storage) MarkProcessed(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[eventID] = time.Now()
	return nil
}

// SaveRestaurant implements menuqr.CatalogStore
func (s *Storage) SaveRestaurant(_ context.Context, r *menuqr.Restaurant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *r
	s.restaurants[r.ID] = &c
	return nil
}

// GetRestaurant implements menuqr.CatalogStore
func (s *Storage) GetRestaurant(_ context.Context, id string) (*menuqr.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.restaurants[id]
	if !ok {
		return nil, menuqr.ErrNotFound
	}
	c := *r
	return &c, nil
}

// ListRestaurants implements menuqr.CatalogStore
func (s *Storage) ListRestaurants(_ context.Context, ownerID string) ([]*menuqr.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*menuqr.Restaurant
	for _, r := range s.restaurants {
		if r.OwnerID == ownerID {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteRestaurant implements menuqr.CatalogStore
func (s *Storage) DeleteRestaurant(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.restaurants[id]; !ok {
		return menuqr.ErrNotFound
	}
	delete(s.restaurants, id)
	for cid, c := range s.categories {
		if c.RestaurantID != id {
			continue
		}
		for iid, item := range s.items {
			if item.CategoryID == cid {
				delete(s.items, iid)
			}
		}
		delete(s.categories, cid)
	}
	for mid, m := range s.menus {
		if m.RestaurantID == id {
			delete(s.menus, mid)
		}
	}
	return nil
}

// SaveCategory implements menuqr.CatalogStore
func (s *Storage) SaveCategory(_ context.Context, c *menuqr.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.categories[c.ID] = &cp
	return nil
}

// GetCategory implements menuqr.CatalogStore
func (s *Storage) GetCategory(_ context.Context, id string) (*menuqr.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, menuqr.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListCategories implements menuqr.CatalogStore
func (s *Storage) ListCategories(_ context.Context, restaurantID string) ([]*menuqr.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*menuqr.Category
	for _, c := range s.categories {
		if c.RestaurantID == restaurantID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SaveItem implements menuqr.CatalogStore
func (s *Storage) SaveItem(_ context.Context, item *menuqr.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.items[item.ID] = &cp
	return nil
}

// GetItem implements menuqr.CatalogStore
func (s *Storage) GetItem(_ context.Context, id string) (*menuqr.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, menuqr.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

// ListItems implements menuqr.CatalogStore
func (s *Storage) ListItems(_ context.Context, categoryID string) ([]*menuqr.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*menuqr.Item
	for _, item := range s.items {
		if item.CategoryID == categoryID {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SaveMenu implements menuqr.CatalogStore
func (s *Storage) SaveMenu(_ context.Context, m *menuqr.Menu) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.menus[m.ID] = copyMenu(m)
	return nil
}

// GetMenu implements menuqr.CatalogStore
func (s *Storage) GetMenu(_ context.Context, id string) (*menuqr.Menu, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.menus[id]
	if !ok {
		return nil, menuqr.ErrNotFound
	}
	return copyMenu(m), nil
}

// ListMenus implements menuqr.CatalogStore
func (s *Storage) ListMenus(_ context.Context, restaurantID string) ([]*menuqr.Menu, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*menuqr.Menu
	for _, m := range s.menus {
		if m.RestaurantID == restaurantID {
			out = append(out, copyMenu(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteMenu implements menuqr.CatalogStore
func (s *Storage) DeleteMenu(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.menus[id]; !ok {
		return menuqr.ErrNotFound
	}
	delete(s.menus, id)
	return nil
}

func copyMenu(m *menuqr.Menu) *menuqr.Menu {
	cp := *m
	cp.CategoryIDs = append([]string(nil), m.CategoryIDs...)
	cp.ItemIDs = append([]string(nil), m.ItemIDs...)
	return &cp
}
