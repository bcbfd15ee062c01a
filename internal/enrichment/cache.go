package enrichment

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

// Cache is the two-tier merchant cache: the injected memo first, then the
// durable alias store. Durable hits are copied into the memo. Writes go to
// the memo first and to the durable store best-effort.
type Cache struct {
	memo Memo
	repo store.MerchantRepository
	log  zerolog.Logger
}

// NewCache builds a cache. repo may be nil for a memo-only cache.
func NewCache(memo Memo, repo store.MerchantRepository, log zerolog.Logger) *Cache {
	if memo == nil {
		memo = NewMemoryMemo()
	}
	return &Cache{memo: memo, repo: repo, log: log}
}

// Get looks up the entry of originalName for userID. The durable tier is
// only consulted for a known user.
func (c *Cache) Get(ctx context.Context, userID, originalName string) (domain.MerchantCacheEntry, bool) {
	key := MemoKey(userID, originalName)
	if e, ok := c.memo.Get(ctx, key); ok {
		return e, true
	}
	if c.repo == nil || userID == "" {
		return domain.MerchantCacheEntry{}, false
	}

	e, err := c.repo.GetMerchantAlias(ctx, userID, originalName)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.log.Warn().Err(err).Str("merchant", originalName).Msg("merchant alias lookup failed")
		}
		return domain.MerchantCacheEntry{}, false
	}
	c.memo.Set(ctx, key, *e)
	return *e, true
}

// Put stores entry and returns the id of its canonical merchant record, or
// an empty string when nothing was written durably.
func (c *Cache) Put(ctx context.Context, userID string, entry domain.MerchantCacheEntry) string {
	c.memo.Set(ctx, MemoKey(userID, entry.OriginalName), entry)
	if c.repo == nil || userID == "" {
		return ""
	}

	merchantID, err := c.repo.EnsureMerchant(ctx, userID, entry.NormalizedName)
	if err != nil {
		c.log.Warn().Err(err).Str("merchant", entry.NormalizedName).Msg("ensuring merchant failed")
	}
	if err := c.repo.UpsertMerchantAlias(ctx, userID, entry); err != nil {
		c.log.Warn().Err(err).Str("merchant", entry.OriginalName).Msg("persisting merchant alias failed")
	}
	return merchantID
}

// Enrich records web lookup details on a canonical merchant record.
func (c *Cache) Enrich(ctx context.Context, m *domain.Merchant) {
	if c.repo == nil || m.ID == "" {
		return
	}
	if err := c.repo.UpdateMerchantEnrichment(ctx, m); err != nil {
		c.log.Warn().Err(err).Str("merchant_id", m.ID).Msg("updating merchant enrichment failed")
	}
}
