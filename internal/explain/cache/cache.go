// Package cache provides a read-through Redis cache for attributions.
// Explanations are expensive (hundreds of classifier calls each) and pure
// functions of (model, method, top-k, text) apart from sampling noise, so
// re-serving a cached attribution keeps repeat runs cheap without changing
// their semantics. Cache failures are transparent: the explainer is simply
// invoked directly.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/explainlab/stability-platform/internal/classifier"
	"github.com/explainlab/stability-platform/internal/explain"
	"github.com/explainlab/stability-platform/pkg/config"
	"github.com/explainlab/stability-platform/pkg/metrics"
	pkgredis "github.com/explainlab/stability-platform/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "explain:"

// Cache wraps an Explainer with Redis-backed memoisation. Concurrent
// requests for the same key are collapsed via singleflight so one cache
// miss triggers at most one explanation.
type Cache struct {
	inner   explain.Explainer
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps inner with a Redis cache. m may be nil.
func New(inner explain.Explainer, client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *Cache {
	return &Cache{
		inner:   inner,
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "explanation-cache", "method", inner.Method()),
	}
}

func (c *Cache) Method() string {
	return c.inner.Method()
}

// Explain serves the attribution from Redis when present, computing and
// storing it otherwise.
func (c *Cache) Explain(ctx context.Context, text string, clf classifier.Classifier, topK int) (*explain.Attribution, error) {
	key := c.buildKey(clf.ID(), text, topK)

	if attr, ok := c.get(ctx, key); ok {
		c.recordHit()
		return attr, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check: another flight may have populated the key while this
		// one queued.
		if attr, ok := c.get(ctx, key); ok {
			return attr, nil
		}
		c.recordMiss()
		attr, err := c.inner.Explain(ctx, text, clf, topK)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, attr)
		return attr, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*explain.Attribution), nil
}

func (c *Cache) get(ctx context.Context, key string) (*explain.Attribution, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var attr explain.Attribution
	if err := json.Unmarshal([]byte(data), &attr); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &attr, true
}

func (c *Cache) set(ctx context.Context, key string, attr *explain.Attribution) {
	data, err := json.Marshal(attr)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// buildKey hashes the text so keys stay bounded regardless of input size.
func (c *Cache) buildKey(modelID, text string, topK int) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s%s:%s:%d:%x", keyPrefix, modelID, c.inner.Method(), topK, sum)
}

func (c *Cache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *Cache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Stats returns lifetime hit/miss counters for this process.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Invalidate drops every cached explanation for modelID and returns the
// number of keys removed. Called when a model is retired or re-deployed.
func (c *Cache) Invalidate(ctx context.Context, modelID string) (int64, error) {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+modelID+":*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache for model %s: %w", modelID, err)
	}
	c.logger.Info("cache invalidated", "model_id", modelID, "deleted", deleted)
	return deleted, nil
}
