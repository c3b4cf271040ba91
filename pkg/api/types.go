package api

import (
	"time"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// SubscriptionResponse is the owner-facing billing state
type SubscriptionResponse struct {
	Plan                string     `json:"plan"`
	EndsAt              *time.Time `json:"ends_at,omitempty"`
	CancellationPending bool       `json:"cancellation_pending"`
	Entitled            bool       `json:"entitled"`
	PaymentMethodID     string     `json:"payment_method_id,omitempty"`
}

// CheckoutRequest selects the price to subscribe to
type CheckoutRequest struct {
	LookupKey string `json:"lookup_key"`
}

// URLResponse carries a hosted page URL
type URLResponse struct {
	URL string `json:"url"`
}

// PlanResponse carries the plan after a restore
type PlanResponse struct {
	Plan string `json:"plan"`
}

// NameRequest is the body of create-restaurant, create-category and create-menu
type NameRequest struct {
	Name string `json:"name"`
}

// ItemRequest is the body of create-item
type ItemRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
}

// MenuItemsRequest adds items to a menu
type MenuItemsRequest struct {
	ItemIDs []string `json:"item_ids"`
}

// RestaurantResponse is a restaurant as returned by the API
type RestaurantResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// CategoryResponse is a category, with items when part of a public menu
type CategoryResponse struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Items []ItemResponse `json:"items,omitempty"`
}

// ItemResponse is a menu item
type ItemResponse struct {
	ID          string `json:"id"`
	CategoryID  string `json:"category_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PriceCents  int64  `json:"price_cents"`
}

// MenuResponse is a menu definition
type MenuResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	CategoryIDs []string `json:"category_ids"`
	ItemIDs     []string `json:"item_ids"`
}

// PublicMenuResponse is served to guests scanning a QR code
type PublicMenuResponse struct {
	Restaurant RestaurantResponse  `json:"restaurant"`
	Menus      []PublicMenuSection `json:"menus"`
}

// PublicMenuSection is one menu with resolved categories
type PublicMenuSection struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Categories []CategoryResponse `json:"categories"`
}

func restaurantResponse(r *menuqr.Restaurant) RestaurantResponse {
	return RestaurantResponse{ID: r.ID, Name: r.Name, Slug: r.Slug, CreatedAt: r.CreatedAt}
}

func itemResponse(i *menuqr.Item) ItemResponse {
	return ItemResponse{
		ID: i.ID, CategoryID: i.CategoryID, Name: i.Name, Description: i.Description, PriceCents: i.Price,
	}
}

func menuResponse(m *menuqr.Menu) MenuResponse {
	resp := MenuResponse{ID: m.ID, Name: m.Name, CategoryIDs: m.CategoryIDs, ItemIDs: m.ItemIDs}
	if resp.CategoryIDs == nil {
		resp.CategoryIDs = []string{}
	}
	if resp.ItemIDs == nil {
		resp.ItemIDs = []string{}
	}
	return resp
}

func publicMenuResponse(pm *menuqr.PublicMenu) PublicMenuResponse {
	resp := PublicMenuResponse{
		Restaurant: restaurantResponse(pm.Restaurant),
		Menus:      make([]PublicMenuSection, 0, len(pm.Menus)),
	}
	for _, section := range pm.Menus {
		out := PublicMenuSection{
			ID:         section.Menu.ID,
			Name:       section.Menu.Name,
			Categories: make([]CategoryResponse, 0, len(section.Categories)),
		}
		for _, pc := range section.Categories {
			cat := CategoryResponse{ID: pc.Category.ID, Name: pc.Category.Name}
			for _, item := range pc.Items {
				cat.Items = append(cat.Items, itemResponse(item))
			}
			out.Categories = append(out.Categories, cat)
		}
		resp.Menus = append(resp.Menus, out)
	}
	return resp
}
