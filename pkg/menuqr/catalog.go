package menuqr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

var errNoCatalog = errors.New("catalog storage not configured")

func (m *Manager) catalogStore() (CatalogStore, error) {
	if m.catalog == nil {
		return nil, errNoCatalog
	}
	return m.catalog, nil
}

// ownedRestaurant loads a restaurant and checks it belongs to ownerID.
func (m *Manager) ownedRestaurant(ctx context.Context, ownerID, restaurantID string) (*Restaurant, error) {
	cs, err := m.catalogStore()
	if err != nil {
		return nil, err
	}
	r, err := cs.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if r.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return r, nil
}

// editable checks ownership and entitlement before a catalog mutation.
func (m *Manager) editable(ctx context.Context, ownerID, restaurantID string) (*Restaurant, error) {
	r, err := m.ownedRestaurant(ctx, ownerID, restaurantID)
	if err != nil {
		return nil, err
	}
	if err := m.RequireEntitled(ctx, ownerID); err != nil {
		return nil, err
	}
	return r, nil
}

// CreateRestaurant creates a restaurant owned by ownerID. Requires an active subscription.
func (m *Manager) CreateRestaurant(ctx context.Context, ownerID, name string) (*Restaurant, error) {
	cs, err := m.catalogStore()
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: restaurant name is required", ErrInvalidInput)
	}
	if err := m.RequireEntitled(ctx, ownerID); err != nil {
		return nil, err
	}

	id := m.newID()
	r := &Restaurant{
		ID:        id,
		OwnerID:   ownerID,
		Name:      name,
		Slug:      Slugify(name) + "-" + shortID(id),
		CreatedAt: m.now().UTC(),
	}
	if err := cs.SaveRestaurant(ctx, r); err != nil {
		return nil, err
	}
	m.logger.Info("restaurant created", F("account_id", ownerID), F("restaurant_id", id))
	return r, nil
}

// ListRestaurants lists the restaurants owned by ownerID.
func (m *Manager) ListRestaurants(ctx context.Context, ownerID string) ([]*Restaurant, error) {
	cs, err := m.catalogStore()
	if err != nil {
		return nil, err
	}
	return cs.ListRestaurants(ctx, ownerID)
}

// GetRestaurant returns a restaurant owned by ownerID.
func (m *Manager) GetRestaurant(ctx context.Context, ownerID, restaurantID string) (*Restaurant, error) {
	return m.ownedRestaurant(ctx, ownerID, restaurantID)
}

// DeleteRestaurant removes a restaurant and everything under it.
// Owners may delete their data without an active subscription.
func (m *Manager) DeleteRestaurant(ctx context.Context, ownerID, restaurantID string) error {
	if _, err := m.ownedRestaurant(ctx, ownerID, restaurantID); err != nil {
		return err
	}
	return m.catalog.DeleteRestaurant(ctx, restaurantID)
}

// AddCategory adds a category to a restaurant.
func (m *Manager) AddCategory(ctx context.Context, ownerID, restaurantID, name string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}
	if _, err := m.editable(ctx, ownerID, restaurantID); err != nil {
		return nil, err
	}
	c := &Category{ID: m.newID(), RestaurantID: restaurantID, Name: name}
	if err := m.catalog.SaveCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddItem adds an item to a category. price is in cents.
func (m *Manager) AddItem(ctx context.Context, ownerID, categoryID, name, description string, price int64) (*Item, error) {
	cs, err := m.catalogStore()
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" || price < 0 {
		return nil, fmt.Errorf("%w: item needs a name and a non-negative price", ErrInvalidInput)
	}
	cat, err := cs.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if _, err := m.editable(ctx, ownerID, cat.RestaurantID); err != nil {
		return nil, err
	}
	item := &Item{
		ID:          m.newID(),
		CategoryID:  categoryID,
		Name:        name,
		Description: strings.TrimSpace(description),
		Price:       price,
	}
	if err := cs.SaveItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// CreateMenu creates an empty menu for a restaurant.
func (m *Manager) CreateMenu(ctx context.Context, ownerID, restaurantID, name string) (*Menu, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: menu name is required", ErrInvalidInput)
	}
	if _, err := m.editable(ctx, ownerID, restaurantID); err != nil {
		return nil, err
	}
	menu := &Menu{ID: m.newID(), RestaurantID: restaurantID, Name: name}
	if err := m.catalog.SaveMenu(ctx, menu); err != nil {
		return nil, err
	}
	return menu, nil
}

// AddItemsToMenu adds items, and their categories, to a menu.
// Items must belong to the menu's restaurant. Items already on the menu are skipped.
func (m *Manager) AddItemsToMenu(ctx context.Context, ownerID, menuID string, itemIDs []string) (*Menu, error) {
	cs, err := m.catalogStore()
	if err != nil {
		return nil, err
	}
	menu, err := cs.GetMenu(ctx, menuID)
	if err != nil {
		return nil, err
	}
	if _, err := m.editable(ctx, ownerID, menu.RestaurantID); err != nil {
		return nil, err
	}

	for _, id := range itemIDs {
		item, err := cs.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		cat, err := cs.GetCategory(ctx, item.CategoryID)
		if err != nil {
			return nil, err
		}
		if cat.RestaurantID != menu.RestaurantID {
			return nil, ErrForbidden
		}
		menu.ItemIDs = appendUnique(menu.ItemIDs, item.ID)
		menu.CategoryIDs = appendUnique(menu.CategoryIDs, cat.ID)
	}
	if err := cs.SaveMenu(ctx, menu); err != nil {
		return nil, err
	}
	return menu, nil
}

// DeleteMenu removes a menu. Categories and items are kept.
func (m *Manager) DeleteMenu(ctx context.Context, ownerID, menuID string) error {
	cs, err := m.catalogStore()
	if err != nil {
		return err
	}
	menu, err := cs.GetMenu(ctx, menuID)
	if err != nil {
		return err
	}
	if _, err := m.editable(ctx, ownerID, menu.RestaurantID); err != nil {
		return err
	}
	return cs.DeleteMenu(ctx, menuID)
}

// PublicMenu builds the customer-facing menu of a restaurant. No authentication is involved.
func (m *Manager) PublicMenu(ctx context.Context, restaurantID string) (*PublicMenu, error) {
	cs, err := m.catalogStore()
	if err != nil {
		return nil, err
	}
	r, err := cs.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	menus, err := cs.ListMenus(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	categories, err := cs.ListCategories(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	out := &PublicMenu{Restaurant: r}
	for _, menu := range menus {
		onMenu := make(map[string]bool, len(menu.ItemIDs))
		for _, id := range menu.ItemIDs {
			onMenu[id] = true
		}
		section := PublicMenuSection{Menu: menu}
		for _, cat := range categories {
			if !slices.Contains(menu.CategoryIDs, cat.ID) {
				continue
			}
			items, err := cs.ListItems(ctx, cat.ID)
			if err != nil {
				return nil, err
			}
			pc := PublicCategory{Category: cat}
			for _, item := range items {
				if onMenu[item.ID] {
					pc.Items = append(pc.Items, item)
				}
			}
			section.Categories = append(section.Categories, pc)
		}
		out.Menus = append(out.Menus, section)
	}
	return out, nil
}

// Slugify lowercases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

