package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/storage"
	"github.com/payment-scanner/internal/storage/sqlite"
	"github.com/payment-scanner/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestCache(t *testing.T) *storage.CacheService {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return storage.NewCacheService(storage.NewRedisCacheFromClient(client), time.Minute)
}

func boolPtr(v bool) *bool { return &v }

func statusPtr(s types.EntryStatus) *types.EntryStatus { return &s }

func TestLedgerService_Create(t *testing.T) {
	svc := NewLedgerService(newTestStore(t), nil)
	ctx := context.Background()

	entry, err := svc.Create(ctx, &CreateTransactionInput{
		Network: types.NetworkTRC20,
		TxHash:  " abc ",
		Address: "TWCtpUaW6dzmgi9B2quh3VoxVUmThNLcxR",
		Amount:  decimal.NewNullDecimal(decimal.RequireFromString("12.5")),
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", entry.TxHash)
	assert.Equal(t, types.StatusConfirmed, entry.Status)
	assert.False(t, entry.Used)

	_, err = svc.Create(ctx, &CreateTransactionInput{
		Network: types.NetworkTRC20,
		TxHash:  "abc",
		Address: "x",
		Amount:  decimal.NewNullDecimal(decimal.NewFromInt(1)),
	})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConflict))
}

// failingUpdateStore rejects every partial update
type failingUpdateStore struct {
	storage.LedgerStore
	calls int
}

func (s *failingUpdateStore) ApplyUpdate(context.Context, string, *models.LedgerUpdate) (*models.LedgerEntry, error) {
	s.calls++
	return nil, apperrors.NewPersistenceError("update ledger entry", errors.New("connection reset"))
}

func TestLedgerService_UpdateIsOneWrite(t *testing.T) {
	base := newTestStore(t)
	ctx := context.Background()

	entry, _, err := base.Upsert(ctx, &models.LedgerEntry{
		Network: types.NetworkTRC20, TxHash: "t1", Address: "a",
		Amount: decimal.NewFromInt(5), Status: types.StatusConfirmed,
	})
	require.NoError(t, err)

	store := &failingUpdateStore{LedgerStore: base}
	svc := NewLedgerService(store, nil)

	_, err = svc.Update(ctx, entry.ID, &UpdateTransactionInput{
		Used:   boolPtr(true),
		Status: statusPtr(types.StatusFailed),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryPersistence))
	assert.Equal(t, 1, store.calls)

	got, err := base.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, got.Status)
	assert.False(t, got.Used)

	// both fields land together through the real store
	updated, err := NewLedgerService(base, nil).Update(ctx, entry.ID, &UpdateTransactionInput{
		Used:   boolPtr(true),
		Status: statusPtr(types.StatusFailed),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, updated.Status)
	assert.True(t, updated.Used)
}

func TestLedgerService_CreateValidation(t *testing.T) {
	svc := NewLedgerService(newTestStore(t), nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		input *CreateTransactionInput
		field string
	}{
		{"nil body", nil, "body"},
		{"bad network", &CreateTransactionInput{Network: "ERC20", TxHash: "h", Address: "a"}, "network"},
		{"missing hash", &CreateTransactionInput{Network: types.NetworkBEP20, Address: "a"}, "txHash"},
		{"missing address", &CreateTransactionInput{Network: types.NetworkBEP20, TxHash: "h"}, "address"},
		{"missing amount", &CreateTransactionInput{Network: types.NetworkBEP20, TxHash: "h", Address: "a"}, "amount"},
		{"zero amount", &CreateTransactionInput{Network: types.NetworkBEP20, TxHash: "h", Address: "a", Amount: decimal.NewNullDecimal(decimal.Zero)}, "amount"},
		{"negative amount", &CreateTransactionInput{Network: types.NetworkBEP20, TxHash: "h", Address: "a", Amount: decimal.NewNullDecimal(decimal.NewFromInt(-1))}, "amount"},
		{"bad status", &CreateTransactionInput{Network: types.NetworkBEP20, TxHash: "h", Address: "a", Amount: decimal.NewNullDecimal(decimal.NewFromInt(1)), Status: "done"}, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.input)
			require.Error(t, err)
			catErr := apperrors.Categorize(err)
			assert.Equal(t, apperrors.CategoryValidation, catErr.Category)
			assert.Equal(t, tt.field, catErr.Details["field"])
		})
	}
}

func TestLedgerService_Update(t *testing.T) {
	store := newTestStore(t)
	svc := NewLedgerService(store, nil)
	ctx := context.Background()

	entry, _, err := store.Upsert(ctx, &models.LedgerEntry{
		Network: types.NetworkBEP20,
		TxHash:  "0xabc",
		Address: "0x4d8322883f4bd1f06e246e940efb2cdd5ed708f8",
		Amount:  decimal.RequireFromString("2.5"),
		Status:  types.StatusConfirmed,
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, entry.ID, &UpdateTransactionInput{Used: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.Used)

	// marking again is a no-op
	updated, err = svc.Update(ctx, entry.ID, &UpdateTransactionInput{Used: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.Used)

	updated, err = svc.Update(ctx, entry.ID, &UpdateTransactionInput{Status: statusPtr(types.StatusFailed)})
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, updated.Status)
	assert.True(t, updated.Used)

	_, err = svc.Update(ctx, entry.ID, &UpdateTransactionInput{Used: boolPtr(false)})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))

	_, err = svc.Update(ctx, entry.ID, &UpdateTransactionInput{})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))

	_, err = svc.Update(ctx, entry.ID, &UpdateTransactionInput{Status: statusPtr("archived")})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))

	_, err = svc.Update(ctx, "00000000-0000-0000-0000-000000000000", &UpdateTransactionInput{Used: boolPtr(true)})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryNotFound))
}

func TestLedgerService_BalanceCached(t *testing.T) {
	store := newTestStore(t)
	cache := newTestCache(t)
	svc := NewLedgerService(store, cache)
	ctx := context.Background()

	balance, err := svc.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	// a write behind the service's back is not visible until invalidation
	_, _, err = store.Upsert(ctx, &models.LedgerEntry{
		Network: types.NetworkTRC20, TxHash: "t1", Address: "a",
		Amount: decimal.NewFromInt(5), Status: types.StatusConfirmed,
	})
	require.NoError(t, err)

	balance, err = svc.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	_, err = svc.Create(ctx, &CreateTransactionInput{
		Network: types.NetworkBEP20, TxHash: "b1", Address: "a", Amount: decimal.NewNullDecimal(decimal.RequireFromString("2.5")),
	})
	require.NoError(t, err)

	balance, err = svc.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7.5", balance.String())
}

func TestLedgerService_BalanceWithoutCache(t *testing.T) {
	store := newTestStore(t)
	svc := NewLedgerService(store, nil)
	ctx := context.Background()

	for hash, status := range map[string]types.EntryStatus{"a": types.StatusConfirmed, "b": types.StatusPending} {
		_, _, err := store.Upsert(ctx, &models.LedgerEntry{
			Network: types.NetworkTRC20, TxHash: hash, Address: "x",
			Amount: decimal.NewFromInt(3), Status: status,
		})
		require.NoError(t, err)
	}

	balance, err := svc.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3", balance.String())
}

func TestLedgerService_ListCachedUntilWrite(t *testing.T) {
	store := newTestStore(t)
	svc := NewLedgerService(store, newTestCache(t))
	ctx := context.Background()

	_, err := svc.Create(ctx, &CreateTransactionInput{
		Network: types.NetworkTRC20, TxHash: "a", Address: "x", Amount: decimal.NewNullDecimal(decimal.NewFromInt(1)),
	})
	require.NoError(t, err)

	entries, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// an out-of-band write is hidden by the cached listing
	_, _, err = store.Upsert(ctx, &models.LedgerEntry{
		Network: types.NetworkTRC20, TxHash: "b", Address: "x",
		Amount: decimal.NewFromInt(2), Status: types.StatusConfirmed,
	})
	require.NoError(t, err)
	entries, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// a write through the service invalidates it
	_, err = svc.Update(ctx, entries[0].ID, &UpdateTransactionInput{Used: boolPtr(true)})
	require.NoError(t, err)
	entries, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
