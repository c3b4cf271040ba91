package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return menuqr.ErrNotFound
	}
	return err
}

// SaveRestaurant implements menuqr.CatalogStore
func (s *Storage) SaveRestaurant(ctx context.Context, r *menuqr.Restaurant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO restaurants (id, owner_id, name, slug, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, slug = EXCLUDED.slug`,
		r.ID, r.OwnerID, r.Name, r.Slug, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save restaurant: %w", err)
	}
	return nil
}

// GetRestaurant implements menuqr.CatalogStore
func (s *Storage) GetRestaurant(ctx context.Context, id string) (*menuqr.Restaurant, error) {
	var r menuqr.Restaurant
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, slug, created_at FROM restaurants WHERE id = $1`, id).
		Scan(&r.ID, &r.OwnerID, &r.Name, &r.Slug, &r.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// ListRestaurants implements menuqr.CatalogStore
func (s *Storage) ListRestaurants(ctx context.Context, ownerID string) ([]*menuqr.Restaurant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, name, slug, created_at FROM restaurants
			WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list restaurants: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*menuqr.Restaurant, error) {
		var r menuqr.Restaurant
		err := row.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Slug, &r.CreatedAt)
		return &r, err
	})
}

// DeleteRestaurant implements menuqr.CatalogStore. Categories, items and menus
// are removed by ON DELETE CASCADE.
func (s *Storage) DeleteRestaurant(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM restaurants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete restaurant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return menuqr.ErrNotFound
	}
	return nil
}

// SaveCategory implements menuqr.CatalogStore
func (s *Storage) SaveCategory(ctx context.Context, c *menuqr.Category) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO categories (id, restaurant_id, name) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		c.ID, c.RestaurantID, c.Name)
	if err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}
	return nil
}

// GetCategory implements menuqr.CatalogStore
func (s *Storage) GetCategory(ctx context.Context, id string) (*menuqr.Category, error) {
	var c menuqr.Category
	err := s.pool.QueryRow(ctx,
		`SELECT id, restaurant_id, name FROM categories WHERE id = $1`, id).
		Scan(&c.ID, &c.RestaurantID, &c.Name)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ListCategories implements menuqr.CatalogStore
func (s *Storage) ListCategories(ctx context.Context, restaurantID string) ([]*menuqr.Category, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, restaurant_id, name FROM categories WHERE restaurant_id = $1 ORDER BY name`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*menuqr.Category, error) {
		var c menuqr.Category
		err := row.Scan(&c.ID, &c.RestaurantID, &c.Name)
		return &c, err
	})
}

// SaveItem implements menuqr.CatalogStore
func (s *Storage) SaveItem(ctx context.Context, item *menuqr.Item) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO items (id, category_id, name, description, price_cents) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				price_cents = EXCLUDED.price_cents`,
		item.ID, item.CategoryID, item.Name, item.Description, item.Price)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

// GetItem implements menuqr.CatalogStore
func (s *Storage) GetItem(ctx context.Context, id string) (*menuqr.Item, error) {
	var item menuqr.Item
	err := s.pool.QueryRow(ctx,
		`SELECT id, category_id, name, description, price_cents FROM items WHERE id = $1`, id).
		Scan(&item.ID, &item.CategoryID, &item.Name, &item.Description, &item.Price)
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// ListItems implements menuqr.CatalogStore
func (s *Storage) ListItems(ctx context.Context, categoryID string) ([]*menuqr.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, category_id, name, description, price_cents FROM items
			WHERE category_id = $1 ORDER BY name`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*menuqr.Item, error) {
		var item menuqr.Item
		err := row.Scan(&item.ID, &item.CategoryID, &item.Name, &item.Description, &item.Price)
		return &item, err
	})
}

// SaveMenu implements menuqr.CatalogStore
func (s *Storage) SaveMenu(ctx context.Context, m *menuqr.Menu) error {
	categoryIDs := m.CategoryIDs
	if categoryIDs == nil {
		categoryIDs = []string{}
	}
	itemIDs := m.ItemIDs
	if itemIDs == nil {
		itemIDs = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO menus (id, restaurant_id, name, category_ids, item_ids) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				category_ids = EXCLUDED.category_ids,
				item_ids = EXCLUDED.item_ids`,
		m.ID, m.RestaurantID, m.Name, categoryIDs, itemIDs)
	if err != nil {
		return fmt.Errorf("failed to save menu: %w", err)
	}
	return nil
}

// GetMenu implements menuqr.CatalogStore
func (s *Storage) GetMenu(ctx context.Context, id string) (*menuqr.Menu, error) {
	var m menuqr.Menu
	err := s.pool.QueryRow(ctx,
		`SELECT id, restaurant_id, name, category_ids, item_ids FROM menus WHERE id = $1`, id).
		Scan(&m.ID, &m.RestaurantID, &m.Name, &m.CategoryIDs, &m.ItemIDs)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// ListMenus implements menuqr.CatalogStore
func (s *Storage) ListMenus(ctx context.Context, restaurantID string) ([]*menuqr.Menu, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, restaurant_id, name, category_ids, item_ids FROM menus
			WHERE restaurant_id = $1 ORDER BY name`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list menus: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*menuqr.Menu, error) {
		var m menuqr.Menu
		err := row.Scan(&m.ID, &m.RestaurantID, &m.Name, &m.CategoryIDs, &m.ItemIDs)
		return &m, err
	})
}

// DeleteMenu implements menuqr.CatalogStore
func (s *Storage) DeleteMenu(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM menus WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete menu: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return menuqr.ErrNotFound
	}
	return nil
}
