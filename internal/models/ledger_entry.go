// Package models provides data models for the payment scanner.
package models

import (
	"time"

	"github.com/payment-scanner/internal/types"
	"github.com/shopspring/decimal"
)

// LedgerEntry is the canonical record of one detected on-chain transfer.
// TxHash is unique across the whole ledger.
type LedgerEntry struct {
	ID        string            `json:"id" db:"id"`
	Network   types.Network     `json:"network" db:"network"`
	TxHash    string            `json:"txHash" db:"tx_hash"`
	Address   string            `json:"address" db:"address"`
	Amount    decimal.Decimal   `json:"amount" db:"amount"`
	Status    types.EntryStatus `json:"status" db:"status"`
	Used      bool              `json:"used" db:"used"`
	CreatedAt time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time         `json:"updatedAt" db:"updated_at"`
}

// NewDetectedEntry builds the entry the scanner upserts for a transfer
func NewDetectedEntry(t *types.Transfer) *LedgerEntry {
	return &LedgerEntry{
		Network: t.Network,
		TxHash:  t.Hash,
		Address: t.ToAddress,
		Amount:  t.Amount,
		Status:  types.StatusConfirmed,
	}
}

// LedgerUpdate is a partial update applied to an entry in one write. A nil
// Status leaves the status alone; MarkUsed only ever sets the flag.
type LedgerUpdate struct {
	Status   *types.EntryStatus
	MarkUsed bool
}

// Empty reports whether the update changes nothing
func (u *LedgerUpdate) Empty() bool {
	return u == nil || (u.Status == nil && !u.MarkUsed)
}
