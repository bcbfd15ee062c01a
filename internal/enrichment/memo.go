package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
)

// Memo is the fast tier of the merchant cache. Implementations must be safe
// for concurrent use; concurrent writes to one key are last-writer-wins.
type Memo interface {
	Get(ctx context.Context, key string) (domain.MerchantCacheEntry, bool)
	Set(ctx context.Context, key string, entry domain.MerchantCacheEntry)
}

// MemoKey scopes a merchant name to a user, case and surrounding spaces
// ignored.
func MemoKey(userID, originalName string) string {
	return userID + "|" + strings.ToLower(strings.TrimSpace(originalName))
}

// MemoryMemo keeps entries in process.
type MemoryMemo struct {
	mu      sync.RWMutex
	entries map[string]domain.MerchantCacheEntry
}

func NewMemoryMemo() *MemoryMemo {
	return &MemoryMemo{entries: make(map[string]domain.MerchantCacheEntry)}
}

func (m *MemoryMemo) Get(_ context.Context, key string) (domain.MerchantCacheEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok
}

func (m *MemoryMemo) Set(_ context.Context, key string, entry domain.MerchantCacheEntry) {
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
}

// Reset drops every entry.
func (m *MemoryMemo) Reset() {
	m.mu.Lock()
	m.entries = make(map[string]domain.MerchantCacheEntry)
	m.mu.Unlock()
}

func (m *MemoryMemo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

const redisKeyPrefix = "optim:merchant:"

// RedisMemo shares entries between service instances. Redis errors are
// logged and read as misses.
type RedisMemo struct {
	client redis.Cmdable
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedisMemo(client redis.Cmdable, ttl time.Duration, log zerolog.Logger) *RedisMemo {
	return &RedisMemo{client: client, ttl: ttl, log: log}
}

func (r *RedisMemo) Get(ctx context.Context, key string) (domain.MerchantCacheEntry, bool) {
	var entry domain.MerchantCacheEntry

	val, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn().Err(err).Str("key", key).Msg("redis memo get failed")
		}
		return entry, false
	}
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("corrupt redis memo entry")
		return entry, false
	}
	return entry, true
}

func (r *RedisMemo) Set(ctx context.Context, key string, entry domain.MerchantCacheEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("encoding memo entry")
		return
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, string(payload), r.ttl).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("redis memo set failed")
	}
}
