package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mihaimyh/menuqr/pkg/billing"
	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

const (
	maxAccountIDLen = 255
	maxBodyBytes    = 64 * 1024
)

var errUnauthorized = errors.New("account ID not found")

// Handler serves the owner JSON API, the public menu and the billing webhook
type Handler struct {
	config Config
	logger menuqr.Logger
}

// Routes returns a chi router with every endpoint mounted
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if h.config.Billing != nil {
		// The provider answers 405 itself for non-POST requests
		r.Handle("/billing/webhook", h.config.Billing.WebhookHandler())
	}
	if h.config.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.config.MetricsHandler)
	}

	r.Get("/menu/{restaurantID}", h.GetPublicMenu)

	r.Route("/api", func(r chi.Router) {
		r.Get("/account/subscription", h.GetSubscription)

		if h.config.Billing != nil {
			r.Post("/billing/checkout", h.Checkout)
			r.Post("/billing/portal", h.Portal)
			r.Post("/billing/cancel", h.Cancel)
			r.Post("/billing/restore", h.Restore)
		}

		r.Get("/restaurants", h.ListRestaurants)
		r.Post("/restaurants", h.CreateRestaurant)
		r.Delete("/restaurants/{id}", h.DeleteRestaurant)
		r.Post("/restaurants/{id}/categories", h.CreateCategory)
		r.Post("/restaurants/{id}/menus", h.CreateMenu)
		r.Post("/categories/{id}/items", h.CreateItem)
		r.Post("/menus/{id}/items", h.AddMenuItems)
		r.Delete("/menus/{id}", h.DeleteMenu)
	})

	return r
}

// accountID extracts and validates the caller's account ID, writing 401/400 on failure
func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := h.config.GetAccountID(r)
	if id == "" {
		h.handleError(w, r, errUnauthorized, http.StatusUnauthorized)
		return "", false
	}
	if len(id) > maxAccountIDLen {
		h.handleError(w, r, fmt.Errorf("invalid account ID format"), http.StatusBadRequest)
		return "", false
	}
	return id, true
}

// GetSubscription returns the caller's plan and entitlement
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	status, err := h.config.Manager.GetSubscription(r.Context(), accountID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SubscriptionResponse{
		Plan:                string(status.Plan),
		EndsAt:              status.PeriodEndsAt,
		CancellationPending: status.IsCancellationPending,
		Entitled:            status.Entitled,
		PaymentMethodID:     status.PaymentMethodID,
	})
}

// Checkout starts a hosted checkout for the requested price
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var req CheckoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	url, err := h.config.Billing.CheckoutURL(r.Context(), accountID, req.LookupKey,
		h.config.CheckoutSuccessURL, h.config.CheckoutCancelURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, URLResponse{URL: url})
}

// Portal returns the hosted billing portal URL
func (h *Handler) Portal(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	url, err := h.config.Billing.PortalURL(r.Context(), accountID, h.config.PortalReturnURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, URLResponse{URL: url})
}

// Cancel cancels the caller's subscription immediately
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	if err := h.config.Billing.CancelSubscription(r.Context(), accountID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Restore re-reads the caller's subscription from the provider
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	plan, err := h.config.Billing.SyncAccount(r.Context(), accountID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{Plan: string(plan)})
}

// ListRestaurants lists the caller's restaurants
func (h *Handler) ListRestaurants(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	list, err := h.config.Manager.ListRestaurants(r.Context(), accountID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]RestaurantResponse, 0, len(list))
	for _, rest := range list {
		out = append(out, restaurantResponse(rest))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateRestaurant creates a restaurant for the caller
func (h *Handler) CreateRestaurant(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var req NameRequest
	if !h.decode(w, r, &req) {
		return
	}
	rest, err := h.config.Manager.CreateRestaurant(r.Context(), accountID, req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, restaurantResponse(rest))
}

// DeleteRestaurant deletes a restaurant with its catalog
func (h *Handler) DeleteRestaurant(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	if err := h.config.Manager.DeleteRestaurant(r.Context(), accountID, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateCategory adds a category to a restaurant
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var req NameRequest
	if !h.decode(w, r, &req) {
		return
	}
	cat, err := h.config.Manager.AddCategory(r.Context(), accountID, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CategoryResponse{ID: cat.ID, Name: cat.Name})
}

// CreateItem adds an item to a category
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var req ItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.config.Manager.AddItem(r.Context(), accountID, chi.URLParam(r, "id"),
		req.Name, req.Description, req.PriceCents)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, itemResponse(item))
}

// CreateMenu creates an empty menu for a restaurant
func (h *Handler) CreateMenu(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var req NameRequest
	if !h.decode(w, r, &req) {
		return
	}
	menu, err := h.config.Manager.CreateMenu(r.Context(), accountID, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, menuResponse(menu))
}

// AddMenuItems puts items on a menu
func (h *Handler) AddMenuItems(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var req MenuItemsRequest
	if !h.decode(w, r, &req) {
		return
	}
	menu, err := h.config.Manager.AddItemsToMenu(r.Context(), accountID, chi.URLParam(r, "id"), req.ItemIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, menuResponse(menu))
}

// DeleteMenu removes a menu
func (h *Handler) DeleteMenu(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	if err := h.config.Manager.DeleteMenu(r.Context(), accountID, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPublicMenu serves a restaurant's menus to guests. No authentication.
func (h *Handler) GetPublicMenu(w http.ResponseWriter, r *http.Request) {
	pm, err := h.config.Manager.PublicMenu(r.Context(), chi.URLParam(r, "restaurantID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publicMenuResponse(pm))
}

// decode reads a JSON body into v, writing 400 on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		h.handleError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return false
	}
	return true
}

// fail maps a domain error to its HTTP status
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("API request failed",
			menuqr.F("method", r.Method),
			menuqr.F("path", r.URL.Path),
			menuqr.F("request_id", middleware.GetReqID(r.Context())),
			menuqr.Err(err),
		)
		err = errors.New("internal error")
	}
	h.handleError(w, r, err, status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, menuqr.ErrInvalidInput),
		errors.Is(err, menuqr.ErrInvalidPlan),
		errors.Is(err, billing.ErrUnknownPrice):
		return http.StatusBadRequest
	case errors.Is(err, menuqr.ErrForbidden),
		errors.Is(err, menuqr.ErrNotEntitled):
		return http.StatusForbidden
	case errors.Is(err, menuqr.ErrNotFound),
		errors.Is(err, menuqr.ErrAccountNotFound),
		errors.Is(err, billing.ErrCustomerNotFound),
		errors.Is(err, billing.ErrNoSubscription):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrAlreadySubscribed),
		errors.Is(err, menuqr.ErrCustomerIDImmutable),
		errors.Is(err, menuqr.ErrDuplicateCustomerID):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}
	writeJSON(w, statusCode, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Response already started; nothing useful to do with an encoding error
	_ = json.NewEncoder(w).Encode(v)
}
