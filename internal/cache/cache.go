// Package cache implements the two-tier scrape cache: a Redis fast tier in
// front of the durable scraping_cache table. The cache is an optimization;
// tier failures are logged and never propagate to callers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brandscope/brandscope-api/internal/metrics"
	"github.com/brandscope/brandscope-api/internal/models"
	"github.com/brandscope/brandscope-api/internal/repository"
	"github.com/brandscope/brandscope-api/internal/urlutil"
)

const (
	tierFast    = "fast"
	tierDurable = "durable"

	keyPrefix = "scrape:"
)

// TwoTier is the scrape cache, keyed by the canonical URL's hash.
type TwoTier struct {
	redis   *redis.Client
	durable repository.CacheRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewTwoTier creates a two-tier cache over the given Redis client and
// durable repository.
func NewTwoTier(rdb *redis.Client, durable repository.CacheRepository, m *metrics.Metrics, logger *slog.Logger) *TwoTier {
	if logger == nil {
		logger = slog.Default()
	}
	return &TwoTier{redis: rdb, durable: durable, metrics: m, logger: logger}
}

// Get looks up the scrape result for a canonical URL. A fast-tier miss
// falls through to the durable tier; a durable hit backfills the fast tier
// with the entry's remaining TTL. Returns (nil, false) on a full miss.
func (c *TwoTier) Get(ctx context.Context, canonicalURL string) (*models.ScrapeResult, bool) {
	key := urlutil.Hash(canonicalURL)

	if body, ok := c.getFast(ctx, key); ok {
		c.metrics.CacheHits.WithLabelValues(tierFast).Inc()
		return body, true
	}
	c.metrics.CacheMisses.WithLabelValues(tierFast).Inc()

	entry, err := c.durable.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			c.logger.Warn("durable cache read failed", "url_hash", key, "error", err)
		}
		c.metrics.CacheMisses.WithLabelValues(tierDurable).Inc()
		return nil, false
	}
	c.metrics.CacheHits.WithLabelValues(tierDurable).Inc()

	if ttl := time.Until(entry.ExpiresAt); ttl > 0 {
		c.setFast(ctx, key, &entry.Body, ttl)
	}

	body := entry.Body
	return &body, true
}

// Put writes the scrape result to both tiers concurrently. Failures are
// logged, never returned.
func (c *TwoTier) Put(ctx context.Context, canonicalURL string, body *models.ScrapeResult, ttl time.Duration) {
	key := urlutil.Hash(canonicalURL)
	now := time.Now().UTC()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.setFast(ctx, key, body, ttl)
	}()

	go func() {
		defer wg.Done()
		entry := &models.CacheEntry{
			URLHash:   key,
			URL:       canonicalURL,
			Body:      *body,
			ScrapedAt: now,
			ExpiresAt: now.Add(ttl),
			PageCount: len(body.Pages),
		}
		if err := c.durable.Upsert(ctx, entry); err != nil {
			c.logger.Warn("durable cache write failed", "url_hash", key, "error", err)
		}
	}()

	wg.Wait()
}

// Invalidate removes the entry from both tiers. Errors are logged only.
func (c *TwoTier) Invalidate(ctx context.Context, canonicalURL string) {
	key := urlutil.Hash(canonicalURL)

	if err := c.redis.Del(ctx, keyPrefix+key).Err(); err != nil {
		c.logger.Warn("fast cache delete failed", "url_hash", key, "error", err)
	}
	if err := c.durable.Delete(ctx, key); err != nil {
		c.logger.Warn("durable cache delete failed", "url_hash", key, "error", err)
	}
}

// Ping reports fast-tier reachability, used by the health endpoint.
func (c *TwoTier) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

func (c *TwoTier) getFast(ctx context.Context, key string) (*models.ScrapeResult, bool) {
	data, err := c.redis.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("fast cache read failed", "url_hash", key, "error", err)
		}
		return nil, false
	}

	var body models.ScrapeResult
	if err := json.Unmarshal(data, &body); err != nil {
		c.logger.Warn("fast cache entry corrupt", "url_hash", key, "error", err)
		return nil, false
	}
	return &body, true
}

func (c *TwoTier) setFast(ctx context.Context, key string, body *models.ScrapeResult, ttl time.Duration) {
	data, err := json.Marshal(body)
	if err != nil {
		c.logger.Warn("fast cache encode failed", "url_hash", key, "error", err)
		return
	}
	if err := c.redis.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		c.logger.Warn("fast cache write failed", "url_hash", key, "error", err)
	}
}
