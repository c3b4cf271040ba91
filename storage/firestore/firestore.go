// Package firestore provides a Firestore implementation of the menuqr account storage and event log.
// Billing customer ids are claimed through a dedicated collection inside the same transaction
// as the account write, so uniqueness holds without a unique index.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// Storage implements menuqr.AccountStore and menuqr.EventLog using Google Cloud Firestore
type Storage struct {
	client              *firestore.Client
	accountsCollection  string
	customersCollection string
	eventsCollection    string
}

var (
	_ menuqr.AccountStore = (*Storage)(nil)
	_ menuqr.EventLog     = (*Storage)(nil)
)

// Config holds Firestore storage configuration
type Config struct {
	// AccountsCollection is the Firestore collection for accounts
	// Default: "menuqr_accounts"
	AccountsCollection string

	// CustomersCollection maps billing customer ids to account ids
	// Default: "menuqr_billing_customers"
	CustomersCollection string

	// EventsCollection records processed billing event ids
	// Default: "menuqr_processed_events"
	EventsCollection string
}

var (
	errImmutable = errors.New("customer immutable")
	errDuplicate = errors.New("customer duplicate")
)

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.AccountsCollection == "" {
		config.AccountsCollection = "menuqr_accounts"
	}
	if config.CustomersCollection == "" {
		config.CustomersCollection = "menuqr_billing_customers"
	}
	if config.EventsCollection == "" {
		config.EventsCollection = "menuqr_processed_events"
	}

	return &Storage{
		client:              client,
		accountsCollection:  config.AccountsCollection,
		customersCollection: config.CustomersCollection,
		eventsCollection:    config.EventsCollection,
	}, nil
}

// GetAccount implements menuqr.AccountStore
func (s *Storage) GetAccount(ctx context.Context, accountID string) (*menuqr.Account, error) {
	snap, err := s.client.Collection(s.accountsCollection).Doc(accountID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, menuqr.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if !snap.Exists() {
		return nil, menuqr.ErrAccountNotFound
	}
	return accountFromData(snap.Ref.ID, snap.Data()), nil
}

// FindByBillingCustomerID implements menuqr.AccountStore
func (s *Storage) FindByBillingCustomerID(ctx context.Context, customerID string) (*menuqr.Account, error) {
	if customerID == "" {
		return nil, menuqr.ErrAccountNotFound
	}
	snap, err := s.client.Collection(s.customersCollection).Doc(customerID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, menuqr.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to resolve customer: %w", err)
	}
	if !snap.Exists() {
		return nil, menuqr.ErrAccountNotFound
	}
	return s.GetAccount(ctx, getString(snap.Data(), "accountId"))
}

// SaveAccount implements menuqr.AccountStore with a transaction covering the customer claim
func (s *Storage) SaveAccount(ctx context.Context, acc *menuqr.Account) error {
	if acc == nil || acc.ID == "" {
		return fmt.Errorf("%w: account id is required", menuqr.ErrInvalidInput)
	}

	accountDoc := s.client.Collection(s.accountsCollection).Doc(acc.ID)

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		// 1. Check the stored customer id
		snap, err := tx.Get(accountDoc)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		var stored *menuqr.Account
		if snap != nil && snap.Exists() {
			stored = accountFromData(acc.ID, snap.Data())
		}
		if err := menuqr.CheckCustomerIDChange(stored, acc); err != nil {
			return errImmutable
		}

		// 2. Claim the customer id
		var customerDoc *firestore.DocumentRef
		if acc.BillingCustomerID != "" {
			customerDoc = s.client.Collection(s.customersCollection).Doc(acc.BillingCustomerID)
			owner, err := tx.Get(customerDoc)
			if err != nil && status.Code(err) != codes.NotFound {
				return err
			}
			if owner != nil && owner.Exists() && getString(owner.Data(), "accountId") != acc.ID {
				return errDuplicate
			}
		}

		// 3. Write
		if err := tx.Set(accountDoc, accountData(acc)); err != nil {
			return err
		}
		if customerDoc != nil {
			return tx.Set(customerDoc, map[string]interface{}{"accountId": acc.ID})
		}
		return nil
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errImmutable):
		return menuqr.ErrCustomerIDImmutable
	case errors.Is(err, errDuplicate):
		return menuqr.ErrDuplicateCustomerID
	default:
		return fmt.Errorf("failed to save account: %w", err)
	}
}

// ListExpired implements menuqr.AccountStore. Requires a composite index on (plan, periodEndsAt).
func (s *Storage) ListExpired(ctx context.Context, now time.Time, limit int) ([]*menuqr.Account, error) {
	if limit <= 0 {
		limit = 1000
	}
	docs, err := s.client.Collection(s.accountsCollection).
		Where("plan", "==", string(menuqr.PlanPro)).
		Where("periodEndsAt", "<", now).
		OrderBy("periodEndsAt", firestore.Asc).
		Limit(limit).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list expired accounts: %w", err)
	}

	out := make([]*menuqr.Account, 0, len(docs))
	for _, doc := range docs {
		out = append(out, accountFromData(doc.Ref.ID, doc.Data()))
	}
	return out, nil
}

// Seen implements menuqr.EventLog
func (s *Storage) Seen(ctx context.Context, eventID string) (bool, error) {
	snap, err := s.client.Collection(s.eventsCollection).Doc(eventID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return snap.Exists(), nil
}

// MarkProcessed implements menuqr.EventLog
func (s *Storage) MarkProcessed(ctx context.Context, eventID string) error {
	_, err := s.client.Collection(s.eventsCollection).Doc(eventID).Create(ctx, map[string]interface{}{
		"processedAt": time.Now().UTC(),
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("failed to mark event: %w", err)
	}
	return nil
}

func accountData(acc *menuqr.Account) map[string]interface{} {
	data := map[string]interface{}{
		"email":                 acc.Email,
		"billingCustomerId":     acc.BillingCustomerID,
		"billingSubscriptionId": acc.BillingSubscriptionID,
		"plan":                  string(acc.Plan),
		"cancellationPending":   acc.IsCancellationPending,
		"paymentMethodId":       acc.PaymentMethodID,
		"createdAt":             acc.CreatedAt,
		"updatedAt":             acc.UpdatedAt,
		"periodEndsAt":          nil,
	}
	if acc.PeriodEndsAt != nil {
		data["periodEndsAt"] = *acc.PeriodEndsAt
	}
	return data
}

func accountFromData(id string, data map[string]interface{}) *menuqr.Account {
	acc := &menuqr.Account{
		ID:                    id,
		Email:                 getString(data, "email"),
		BillingCustomerID:     getString(data, "billingCustomerId"),
		BillingSubscriptionID: getString(data, "billingSubscriptionId"),
		Plan:                  menuqr.Plan(getString(data, "plan")),
		PaymentMethodID:       getString(data, "paymentMethodId"),
		CreatedAt:             getTime(data, "createdAt"),
		UpdatedAt:             getTime(data, "updatedAt"),
	}
	if v, ok := data["cancellationPending"].(bool); ok {
		acc.IsCancellationPending = v
	}
	if ends, ok := data["periodEndsAt"].(time.Time); ok && !ends.IsZero() {
		ends = ends.UTC()
		acc.PeriodEndsAt = &ends
	}
	return acc
}

// Helper functions for type conversion from Firestore data

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v.UTC()
	}
	return time.Time{}
}
