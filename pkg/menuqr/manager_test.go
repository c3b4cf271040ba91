package menuqr_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
	"github.com/mihaimyh/menuqr/storage/memory"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*menuqr.Manager, *memory.Storage) {
	t.Helper()
	store := memory.New()
	ids := 0
	m, err := menuqr.NewManager(store, store, menuqr.Config{
		CacheConfig: &menuqr.CacheConfig{Enabled: true, AccountTTL: time.Minute},
		Now:         func() time.Time { return testNow },
		NewID: func() string {
			ids++
			return "id-" + string(rune('a'+ids-1))
		},
	})
	require.NoError(t, err)
	return m, store
}

func savePro(t *testing.T, store *memory.Storage, id string, endsAt time.Time) {
	t.Helper()
	require.NoError(t, store.SaveAccount(context.Background(), &menuqr.Account{
		ID: id, Email: id + "@example.com", BillingCustomerID: "cus_" + id, Plan: menuqr.PlanPro, PeriodEndsAt: &endsAt,
	}))
}

func TestNewManager_RequiresStorage(t *testing.T) {
	_, err := menuqr.NewManager(nil, nil, menuqr.Config{})
	assert.ErrorIs(t, err, menuqr.ErrStorageUnavailable)
}

func TestManager_CreateAccount(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	acc, err := m.CreateAccount(ctx, "acc_1", " owner@example.com ")
	require.NoError(t, err)
	assert.Equal(t, menuqr.PlanFree, acc.Plan)
	assert.Equal(t, "owner@example.com", acc.Email)
	assert.Equal(t, testNow, acc.UpdatedAt)

	_, err = m.CreateAccount(ctx, "", "x@example.com")
	assert.ErrorIs(t, err, menuqr.ErrInvalidInput)
}

func TestManager_AssignCustomerID(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.CreateAccount(ctx, "acc_1", "owner@example.com")
	require.NoError(t, err)

	acc, err := m.AssignCustomerID(ctx, "acc_1", "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", acc.BillingCustomerID)

	_, err = m.AssignCustomerID(ctx, "acc_1", "cus_1")
	assert.NoError(t, err)

	_, err = m.AssignCustomerID(ctx, "acc_1", "cus_2")
	assert.ErrorIs(t, err, menuqr.ErrCustomerIDImmutable)

	found, err := m.FindByBillingCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "acc_1", found.ID)
}

func TestManager_CheckEntitlement(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	savePro(t, store, "active", testNow.Add(time.Hour))
	savePro(t, store, "lapsed", testNow.Add(-time.Hour))
	require.NoError(t, store.SaveAccount(ctx, &menuqr.Account{ID: "pro_no_end", Plan: menuqr.PlanPro}))
	require.NoError(t, store.SaveAccount(ctx, &menuqr.Account{ID: "free", Plan: menuqr.PlanFree}))

	tests := []struct {
		id   string
		want bool
	}{
		{"active", true},
		{"lapsed", false},
		{"pro_no_end", true},
		{"free", false},
		{"unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			ok, err := m.CheckEntitlement(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	assert.ErrorIs(t, m.RequireEntitled(ctx, "free"), menuqr.ErrNotEntitled)
}

func TestManager_SaveInvalidatesCache(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()
	savePro(t, store, "acc_1", testNow.Add(time.Hour))

	acc, err := m.GetAccount(ctx, "acc_1")
	require.NoError(t, err)
	acc.Plan = menuqr.PlanFree
	acc.PeriodEndsAt = nil
	require.NoError(t, m.SaveAccount(ctx, acc))

	status, err := m.GetSubscription(ctx, "acc_1")
	require.NoError(t, err)
	assert.Equal(t, menuqr.PlanFree, status.Plan)
	assert.False(t, status.Entitled)
}

func TestManager_GetAccount_NotFound(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.GetAccount(context.Background(), "missing")
	assert.True(t, errors.Is(err, menuqr.ErrAccountNotFound))
}
