package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/maltedev/listing-harvester/internal/models"
	"github.com/maltedev/listing-harvester/internal/scraper"
)

const (
	DefaultTTL = 12 * time.Hour
	keyPrefix  = "listing:"
)

// CachedResolver wraps a scraper.Resolver. Only resolved records are cached;
// a cache failure falls through to the wrapped resolver.
type CachedResolver struct {
	next   scraper.Resolver
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

var _ scraper.Resolver = (*CachedResolver)(nil)

func NewCachedResolver(next scraper.Resolver, store Store, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedResolver{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: logger.With("component", "detail_cache"),
	}
}

func (c *CachedResolver) Resolve(ctx context.Context, link string) models.ListingRecord {
	key := Key(link)

	if data, err := c.store.Get(key); err == nil {
		var rec models.ListingRecord
		if err := json.Unmarshal(data, &rec); err == nil && rec.Resolved {
			c.logger.Debug("cache hit", "url", link)
			return rec
		}
		c.logger.Warn("dropping unreadable cache entry", "url", link)
		_ = c.store.Delete(key)
	} else if !errors.Is(err, memcache.ErrCacheMiss) {
		c.logger.Warn("cache lookup failed", "url", link, "error", err)
	}

	rec := c.next.Resolve(ctx, link)
	if !rec.Resolved {
		return rec
	}

	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("failed to encode record", "url", link, "error", err)
		return rec
	}
	if err := c.store.Set(key, data, c.ttl); err != nil {
		c.logger.Warn("cache store failed", "url", link, "error", err)
	}
	return rec
}

// Key maps a listing link to a memcache-safe key.
func Key(link string) string {
	sum := sha1.Sum([]byte(link))
	return keyPrefix + hex.EncodeToString(sum[:])
}
