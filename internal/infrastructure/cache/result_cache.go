// Package cache implements the two-tier result cache for receivables
// datasets: a fast in-process tier backed by a durable per-session tier.
// The TTL and tiering policy live here, in one place, rather than at the
// call sites that consult the cache.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/domain/dataset"
)

// DefaultTTL is how long a cached result set stays servable.
const DefaultTTL = 15 * time.Minute

// defaultFormula keys requests that carry no explicit formula text.
const defaultFormula = "default"

// Key identifies one logical query: the connection identity plus the active
// data formula. Keys with missing identity fields never resolve, which forces
// a live fetch every time for requests we cannot attribute to a company.
type Key struct {
	LocationID  string
	CompanyGUID string
	Formula     string
}

// NewKey builds a cache key. ok is false when either identity field is
// missing; such requests are not cacheable.
func NewKey(locationID, companyGUID, formula string) (Key, bool) {
	if locationID == "" || companyGUID == "" {
		return Key{}, false
	}
	if formula == "" {
		formula = defaultFormula
	}
	return Key{LocationID: locationID, CompanyGUID: companyGUID, Formula: formula}, true
}

// String renders the composite store key.
func (k Key) String() string {
	return k.LocationID + ":" + k.CompanyGUID + ":" + k.Formula
}

// Entry is one cached, normalized result set with its write timestamp. It is
// the JSON shape persisted in the durable tier. Entries are never updated in
// place; a refresh writes a whole new entry.
type Entry struct {
	Timestamp time.Time                  `json:"timestamp"`
	Columns   []dataset.ColumnDescriptor `json:"columns"`
	Rows      []dataset.Row              `json:"rows"`
}

// Dataset reassembles the cached dataset.
func (e Entry) Dataset() dataset.Dataset {
	return dataset.Dataset{Columns: e.Columns, Rows: e.Rows}
}

// Store is a plain string key/value store. Both tiers implement it; the
// tiered cache owns encoding, TTL validation and eviction on top.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// TieredCache checks the in-process tier first, then the durable tier. A
// durable-tier hit backfills the in-process tier. Reads past the TTL evict
// the entry from both tiers and report a miss; stale data is never returned.
type TieredCache struct {
	l1     Store
	l2     Store
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// Option is a functional option for TieredCache.
type Option func(*TieredCache)

// WithTTL overrides the default time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(c *TieredCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *TieredCache) { c.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *TieredCache) { c.now = now }
}

// NewTieredCache creates a tiered cache over the two stores. l2 may be nil
// when no durable tier is configured; the cache then degrades to in-process
// only.
func NewTieredCache(l1, l2 Store, opts ...Option) *TieredCache {
	c := &TieredCache{
		l1:     l1,
		l2:     l2,
		ttl:    DefaultTTL,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *TieredCache) TTL() time.Duration { return c.ttl }

// Get returns the cached entry for the key, or ok=false on a miss. Expired
// and undecodable entries are evicted and reported as misses; neither is ever
// surfaced to the caller as an error.
func (c *TieredCache) Get(ctx context.Context, key Key) (Entry, bool) {
	if entry, ok := c.getFromTier(ctx, c.l1, key, "l1"); ok {
		return entry, true
	}
	if c.l2 == nil {
		return Entry{}, false
	}
	entry, ok := c.getFromTier(ctx, c.l2, key, "l2")
	if !ok {
		return Entry{}, false
	}
	c.backfillL1(ctx, key, entry)
	return entry, true
}

func (c *TieredCache) getFromTier(ctx context.Context, tier Store, key Key, name string) (Entry, bool) {
	raw, ok, err := tier.Get(ctx, key.String())
	if err != nil {
		c.logger.Warn("cache tier read failed",
			zap.String("tier", name),
			zap.String("key", key.String()),
			zap.Error(err))
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || !entry.Dataset().Aligned() {
		// Corrupted entry: treat as a miss and drop it so the next fetch
		// rewrites it cleanly.
		c.logger.Warn("evicting undecodable cache entry",
			zap.String("tier", name),
			zap.String("key", key.String()),
			zap.Error(err))
		c.Evict(ctx, key)
		return Entry{}, false
	}

	if c.now().Sub(entry.Timestamp) > c.ttl {
		c.logger.Debug("evicting expired cache entry",
			zap.String("key", key.String()),
			zap.Time("written_at", entry.Timestamp))
		c.Evict(ctx, key)
		return Entry{}, false
	}
	return entry, true
}

// Put stores a normalized dataset under the key, fully replacing any prior
// entry in both tiers. Store failures are logged, never propagated; a cache
// that cannot write only costs the next caller a live fetch.
func (c *TieredCache) Put(ctx context.Context, key Key, d dataset.Dataset) {
	entry := Entry{Timestamp: c.now(), Columns: d.Columns, Rows: d.Rows}
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("failed to encode cache entry", zap.String("key", key.String()), zap.Error(err))
		return
	}

	if c.l2 != nil {
		if err := c.l2.Set(ctx, key.String(), string(raw)); err != nil {
			c.logger.Warn("durable tier write failed", zap.String("key", key.String()), zap.Error(err))
		}
	}
	if err := c.l1.Set(ctx, key.String(), string(raw)); err != nil {
		c.logger.Warn("in-process tier write failed", zap.String("key", key.String()), zap.Error(err))
	}
}

// Evict removes the key from both tiers.
func (c *TieredCache) Evict(ctx context.Context, key Key) {
	if err := c.l1.Remove(ctx, key.String()); err != nil {
		c.logger.Warn("l1 evict failed", zap.String("key", key.String()), zap.Error(err))
	}
	if c.l2 == nil {
		return
	}
	if err := c.l2.Remove(ctx, key.String()); err != nil {
		c.logger.Warn("l2 evict failed", zap.String("key", key.String()), zap.Error(err))
	}
}

func (c *TieredCache) backfillL1(ctx context.Context, key Key, entry Entry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.l1.Set(ctx, key.String(), string(raw)); err != nil {
		c.logger.Warn("l1 backfill failed", zap.String("key", key.String()), zap.Error(err))
	}
}
