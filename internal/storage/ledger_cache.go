package storage

import (
	"context"
	"time"

	"github.com/payment-scanner/internal/models"
)

// CachedLedgerList is the cached newest-first ledger listing
type CachedLedgerList struct {
	Entries  []*models.LedgerEntry `json:"entries"`
	CachedAt time.Time             `json:"cachedAt"`
}

// LedgerListKey is the key of the full ledger listing
func (c *CacheService) LedgerListKey() string {
	return c.GenerateCacheKey(CacheKeyLedger, "all")
}

// GetLedgerList returns the cached listing, if any
func (c *CacheService) GetLedgerList(ctx context.Context) ([]*models.LedgerEntry, bool, error) {
	var list CachedLedgerList
	found, err := c.Get(ctx, c.LedgerListKey(), &list)
	if err != nil || !found {
		return nil, false, err
	}
	return list.Entries, true, nil
}

// SetLedgerList caches the listing until the next ledger write or the TTL
func (c *CacheService) SetLedgerList(ctx context.Context, entries []*models.LedgerEntry) error {
	return c.Set(ctx, c.LedgerListKey(), CachedLedgerList{
		Entries:  entries,
		CachedAt: time.Now().UTC(),
	})
}
