package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/payment-scanner/internal/types"
)

// ChainAdapter fetches the most recent transfers to one watched address and
// returns them filtered and scaled. It never panics; a failed fetch returns
// no transfers and a *ScanFailure.
type ChainAdapter interface {
	// Network returns the network this adapter watches
	Network() types.Network

	// Address returns the watched address in its canonical form
	Address() string

	// Scan fetches one page of recent transfers to the watched address
	Scan(ctx context.Context) ([]*types.Transfer, error)

	// Health returns request statistics for the upstream explorer
	Health() *ProviderHealth
}

var (
	// ErrInvalidAddress indicates the configured address cannot be parsed
	ErrInvalidAddress = errors.New("invalid address format")

	// ErrInvalidAmount indicates a raw transfer amount could not be scaled
	ErrInvalidAmount = errors.New("invalid transfer amount")
)

// ScanFailure is returned by Scan when the explorer could not be reached or
// its response could not be decoded. Cause is a transport or parse error.
type ScanFailure struct {
	Network types.Network
	Cause   error
}

func (e *ScanFailure) Error() string {
	return fmt.Sprintf("%s scan failed: %v", e.Network, e.Cause)
}

func (e *ScanFailure) Unwrap() error {
	return e.Cause
}

// NewScanFailure wraps cause for network
func NewScanFailure(network types.Network, cause error) *ScanFailure {
	return &ScanFailure{Network: network, Cause: cause}
}

// AsScanFailure extracts a *ScanFailure from err's chain
func AsScanFailure(err error) (*ScanFailure, bool) {
	var sf *ScanFailure
	if errors.As(err, &sf) {
		return sf, true
	}
	return nil, false
}
