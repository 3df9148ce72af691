// Package types provides common type definitions for the payment scanner.
package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Network identifies the chain a ledger entry was detected on
type Network string

const (
	// NetworkTRC20 is a TRON token/TRX transfer
	NetworkTRC20 Network = "TRC20"
	// NetworkBEP20 is a BNB Smart Chain token transfer
	NetworkBEP20 Network = "BEP20"
)

// Networks lists every supported network in scan order
var Networks = []Network{NetworkTRC20, NetworkBEP20}

// IsValid reports whether n is a supported network
func (n Network) IsValid() bool {
	return n == NetworkTRC20 || n == NetworkBEP20
}

// ParseNetwork parses a network name case-insensitively
func ParseNetwork(s string) (Network, error) {
	n := Network(strings.ToUpper(strings.TrimSpace(s)))
	if !n.IsValid() {
		return "", fmt.Errorf("unsupported network %q", s)
	}
	return n, nil
}

// EntryStatus is the lifecycle status of a ledger entry
type EntryStatus string

const (
	// StatusPending is an entry awaiting confirmation
	StatusPending EntryStatus = "pending"
	// StatusConfirmed is an entry counted towards the balance
	StatusConfirmed EntryStatus = "confirmed"
	// StatusFailed is an entry that will never be counted
	StatusFailed EntryStatus = "failed"
)

// IsValid reports whether s is a known entry status
func (s EntryStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusFailed:
		return true
	}
	return false
}

// DepositStatus is the status of a manually recorded deposit
type DepositStatus string

const (
	DepositPending DepositStatus = "pending"
	DepositSuccess DepositStatus = "success"
	DepositFailed  DepositStatus = "failed"
)

// IsValid reports whether s is a known deposit status
func (s DepositStatus) IsValid() bool {
	switch s {
	case DepositPending, DepositSuccess, DepositFailed:
		return true
	}
	return false
}

// WithdrawalStatus is the approval status of a withdrawal request
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

// IsValid reports whether s is a known withdrawal status
func (s WithdrawalStatus) IsValid() bool {
	switch s {
	case WithdrawalPending, WithdrawalApproved, WithdrawalRejected:
		return true
	}
	return false
}

// Transfer is one incoming transfer observed by a chain adapter, already
// filtered to the watched address and scaled to whole token units.
type Transfer struct {
	Network   Network         `json:"network"`
	Hash      string          `json:"hash"`
	ToAddress string          `json:"toAddress"`
	RawAmount string          `json:"rawAmount"`
	Amount    decimal.Decimal `json:"amount"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// ScaleAmount converts a raw base-unit integer (as returned by an explorer)
// into token units by shifting it decimals places to the right.
// The raw value must be a non-negative integer.
func ScaleAmount(raw string, decimals int32) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	if decimals < 0 {
		return decimal.Zero, fmt.Errorf("negative decimals %d", decimals)
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %q", raw)
	}
	if !d.Equal(d.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("amount %q is not an integer", raw)
	}

	return d.Shift(-decimals), nil
}
