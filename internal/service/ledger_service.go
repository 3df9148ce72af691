package service

import (
	"context"
	"strings"

	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/logging"
	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/storage"
	"github.com/payment-scanner/internal/types"
	"github.com/shopspring/decimal"
)

// LedgerCache caches the listing and the confirmed balance between writes
type LedgerCache interface {
	GetLedgerList(ctx context.Context) ([]*models.LedgerEntry, bool, error)
	SetLedgerList(ctx context.Context, entries []*models.LedgerEntry) error
	GetBalance(ctx context.Context) (decimal.Decimal, bool, error)
	SetBalance(ctx context.Context, balance decimal.Decimal) error
	InvalidateLedger(ctx context.Context) error
}

// LedgerService serves the ledger read API and the manual write operations
type LedgerService struct {
	store  storage.LedgerStore
	cache  LedgerCache
	logger *logging.Logger
}

// NewLedgerService creates a new ledger service. cache may be nil.
func NewLedgerService(store storage.LedgerStore, cache LedgerCache) *LedgerService {
	return &LedgerService{
		store:  store,
		cache:  cache,
		logger: logging.Component("ledger_service"),
	}
}

// CreateTransactionInput is a manually entered ledger entry
type CreateTransactionInput struct {
	Network types.Network       `json:"network"`
	TxHash  string              `json:"txHash"`
	Address string              `json:"address"`
	Amount  decimal.NullDecimal `json:"amount"`
	Status  types.EntryStatus   `json:"status,omitempty"`
}

// UpdateTransactionInput is a partial update. At least one field must be set.
type UpdateTransactionInput struct {
	Used   *bool              `json:"used,omitempty"`
	Status *types.EntryStatus `json:"status,omitempty"`
}

// List returns every entry, newest first
func (s *LedgerService) List(ctx context.Context) ([]*models.LedgerEntry, error) {
	if s.cache != nil {
		entries, found, err := s.cache.GetLedgerList(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("Ledger cache read failed, falling back to store")
		} else if found {
			return entries, nil
		}
	}

	entries, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetLedgerList(ctx, entries); err != nil {
			s.logger.WithError(err).Warn("Failed to cache ledger list")
		}
	}
	return entries, nil
}

// Get returns one entry
func (s *LedgerService) Get(ctx context.Context, id string) (*models.LedgerEntry, error) {
	return s.store.GetByID(ctx, id)
}

// Balance returns the sum of confirmed amounts, served from cache when possible
func (s *LedgerService) Balance(ctx context.Context) (decimal.Decimal, error) {
	if s.cache != nil {
		balance, found, err := s.cache.GetBalance(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("Balance cache read failed, falling back to store")
		} else if found {
			return balance, nil
		}
	}

	balance, err := s.store.SumConfirmed(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	if s.cache != nil {
		if err := s.cache.SetBalance(ctx, balance); err != nil {
			s.logger.WithError(err).Warn("Failed to cache balance")
		}
	}
	return balance, nil
}

// Create inserts a manual entry. A duplicate txHash is a conflict.
func (s *LedgerService) Create(ctx context.Context, input *CreateTransactionInput) (*models.LedgerEntry, error) {
	if input == nil {
		return nil, apperrors.NewValidationError("body", "request body is required")
	}
	if !input.Network.IsValid() {
		return nil, apperrors.NewValidationError("network", "network must be TRC20 or BEP20")
	}
	txHash := strings.TrimSpace(input.TxHash)
	if txHash == "" {
		return nil, apperrors.NewValidationError("txHash", "txHash is required")
	}
	address := strings.TrimSpace(input.Address)
	if address == "" {
		return nil, apperrors.NewValidationError("address", "address is required")
	}
	if !input.Amount.Valid {
		return nil, apperrors.NewValidationError("amount", "amount is required")
	}
	if !input.Amount.Decimal.IsPositive() {
		return nil, apperrors.NewValidationError("amount", "amount must be positive")
	}
	status := input.Status
	if status == "" {
		status = types.StatusConfirmed
	}
	if !status.IsValid() {
		return nil, apperrors.NewValidationError("status", "status must be pending, confirmed or failed")
	}

	entry, err := s.store.Create(ctx, &models.LedgerEntry{
		Network: input.Network,
		TxHash:  txHash,
		Address: address,
		Amount:  input.Amount.Decimal,
		Status:  status,
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.logger.WithFields(map[string]interface{}{
		"id":      entry.ID,
		"txHash":  entry.TxHash,
		"network": entry.Network,
	}).Info("Manual ledger entry created")
	return entry, nil
}

// Update applies a partial update in one store write. used can only go
// from false to true.
func (s *LedgerService) Update(ctx context.Context, id string, input *UpdateTransactionInput) (*models.LedgerEntry, error) {
	if input == nil || (input.Used == nil && input.Status == nil) {
		return nil, apperrors.NewValidationError("body", "at least one of used or status is required")
	}
	if input.Used != nil && !*input.Used {
		return nil, apperrors.NewValidationError("used", "a used entry cannot be released")
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, apperrors.NewValidationError("status", "status must be pending, confirmed or failed")
	}

	entry, err := s.store.ApplyUpdate(ctx, id, &models.LedgerUpdate{
		Status:   input.Status,
		MarkUsed: input.Used != nil,
	})
	if err != nil {
		return nil, err
	}
	if input.Used != nil {
		s.logger.WithFields(map[string]interface{}{
			"id":     entry.ID,
			"txHash": entry.TxHash,
		}).Info("Ledger entry marked used")
	}

	s.invalidate(ctx)
	return entry, nil
}

func (s *LedgerService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateLedger(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate ledger cache")
	}
}
