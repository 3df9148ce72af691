// Package storage provides database connections and the ledger and record
// repositories behind the payment scanner.
package storage

import (
	"context"

	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/types"
	"github.com/shopspring/decimal"
)

// LedgerStore persists ledger entries keyed by transaction hash.
//
// Upsert inserts an entry with used=false when the hash is unseen, otherwise
// refreshes network, address, amount, status and updatedAt. It never writes
// the used flag of an existing entry and never fails on a duplicate hash.
//
// ApplyUpdate changes status and/or the used flag in a single write, so a
// failure leaves the entry untouched. MarkUsed and UpdateStatus are its
// single-field forms.
type LedgerStore interface {
	Upsert(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, bool, error)
	Create(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error)
	GetByID(ctx context.Context, id string) (*models.LedgerEntry, error)
	MarkUsed(ctx context.Context, id string) (*models.LedgerEntry, error)
	UpdateStatus(ctx context.Context, id string, status types.EntryStatus) (*models.LedgerEntry, error)
	ApplyUpdate(ctx context.Context, id string, update *models.LedgerUpdate) (*models.LedgerEntry, error)
	ListAll(ctx context.Context) ([]*models.LedgerEntry, error)
	SumConfirmed(ctx context.Context) (decimal.Decimal, error)
}

// RecordStore persists deposits, withdrawals and banks
type RecordStore interface {
	CreateDeposit(ctx context.Context, d *models.Deposit) (*models.Deposit, error)
	ListDeposits(ctx context.Context) ([]*models.Deposit, error)
	CreateWithdrawal(ctx context.Context, w *models.Withdrawal) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context) ([]*models.Withdrawal, error)
	UpdateWithdrawalStatus(ctx context.Context, id string, status types.WithdrawalStatus) error
	CreateBank(ctx context.Context, b *models.Bank) (*models.Bank, error)
	ListBanks(ctx context.Context) ([]*models.Bank, error)
}

// Store is a complete backend
type Store interface {
	LedgerStore
	RecordStore
	Ping(ctx context.Context) error
	Close() error
}
