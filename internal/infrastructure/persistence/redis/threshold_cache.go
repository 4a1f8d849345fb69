package redis

import (
	"context"
	"errors"
	"time"

	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/metrics"
	"github.com/butp-hub/destination-predictor/pkg/circuitbreaker"
)

// Store is the JSON key/value surface ThresholdCache needs. *Cache implements it.
type Store interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// ThresholdCache memoises search results by input fingerprint.
type ThresholdCache struct {
	store   Store
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewThresholdCache creates a cache with the given TTL; zero means TTLThresholdResult.
func NewThresholdCache(store Store, ttl time.Duration) *ThresholdCache {
	if ttl <= 0 {
		ttl = TTLThresholdResult
	}
	return &ThresholdCache{store: store, ttl: ttl}
}

// WithBreaker routes every backend call through cb. While cb is open the
// cache answers ErrCacheUnavailable without touching Redis.
func (c *ThresholdCache) WithBreaker(cb *circuitbreaker.CircuitBreaker) *ThresholdCache {
	c.breaker = cb
	return c
}

// IsBackendFailure reports whether err should count against the breaker.
func IsBackendFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrCacheMiss)
}

func (c *ThresholdCache) call(ctx context.Context, fn func(context.Context) error) error {
	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Execute(ctx, fn)
}

// Get returns the cached result for fingerprint.
// Returns ErrCacheMiss when absent, ErrCacheUnavailable on backend failure.
func (c *ThresholdCache) Get(ctx context.Context, fingerprint string) (threshold.Result, error) {
	var res threshold.Result
	err := c.call(ctx, func(ctx context.Context) error {
		return c.store.Get(ctx, ThresholdKey(fingerprint), &res)
	})
	switch {
	case err == nil:
		metrics.CacheLookup("hit")
		return res, nil
	case errors.Is(err, ErrCacheMiss):
		metrics.CacheLookup("miss")
		return threshold.Result{}, ErrCacheMiss
	case circuitbreaker.IsRejected(err):
		metrics.CacheLookup("skipped")
		return threshold.Result{}, shared.ErrCacheUnavailable
	default:
		metrics.CacheLookup("error")
		return threshold.Result{}, shared.WrapError("cache", "Get", shared.ErrServiceUnavailable, "result cache is unavailable", err)
	}
}

// Set stores res under fingerprint.
func (c *ThresholdCache) Set(ctx context.Context, fingerprint string, res threshold.Result) error {
	err := c.call(ctx, func(ctx context.Context) error {
		return c.store.Set(ctx, ThresholdKey(fingerprint), res, c.ttl)
	})
	if err == nil {
		return nil
	}
	if circuitbreaker.IsRejected(err) {
		return shared.ErrCacheUnavailable
	}
	return shared.WrapError("cache", "Set", shared.ErrServiceUnavailable, "result cache is unavailable", err)
}
