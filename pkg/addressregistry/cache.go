package addressregistry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"golang.org/x/sync/singleflight"
)

// Cache is the slice of the redis client the registry cache needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(parts ...string) string
}

const defaultFetchTimeout = 10 * time.Second

// CachedRegistry serves division lists from Redis and collapses concurrent
// misses for the same list into one upstream call. Only successful upstream
// responses are cached.
//
// The shared upstream call is detached from any single caller's context and
// bounded by its own timeout; each caller stops waiting when its own context
// ends.
type CachedRegistry struct {
	next         Registry
	cache        Cache
	ttl          time.Duration
	fetchTimeout time.Duration
	logg         *logger.Logger
	metrics      *metrics.DependencyMetrics
	group        singleflight.Group
}

func NewCachedRegistry(next Registry, cache Cache, ttl time.Duration, logg *logger.Logger, m *metrics.DependencyMetrics) *CachedRegistry {
	return &CachedRegistry{next: next, cache: cache, ttl: ttl, fetchTimeout: defaultFetchTimeout, logg: logg, metrics: m}
}

// WithFetchTimeout bounds each shared upstream call.
func (r *CachedRegistry) WithFetchTimeout(d time.Duration) *CachedRegistry {
	if d > 0 {
		r.fetchTimeout = d
	}
	return r
}

func (r *CachedRegistry) ListProvinces(ctx context.Context) ([]Division, error) {
	return r.load(ctx, opListProvinces, r.cache.CacheKey("address", "provinces"), func(ctx context.Context) ([]Division, error) {
		return r.next.ListProvinces(ctx)
	})
}

func (r *CachedRegistry) ListDistricts(ctx context.Context, provinceID string) ([]Division, error) {
	return r.load(ctx, opListDistricts, r.cache.CacheKey("address", "districts", provinceID), func(ctx context.Context) ([]Division, error) {
		return r.next.ListDistricts(ctx, provinceID)
	})
}

func (r *CachedRegistry) ListWards(ctx context.Context, districtID string) ([]Division, error) {
	return r.load(ctx, opListWards, r.cache.CacheKey("address", "wards", districtID), func(ctx context.Context) ([]Division, error) {
		return r.next.ListWards(ctx, districtID)
	})
}

func (r *CachedRegistry) load(ctx context.Context, op, key string, fetch func(context.Context) ([]Division, error)) ([]Division, error) {
	if cached, ok := r.lookup(ctx, op, key); ok {
		return cached, nil
	}

	ch := r.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()
		divisions, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		r.store(fetchCtx, key, divisions)
		return divisions, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Division), nil
	}
}

func (r *CachedRegistry) lookup(ctx context.Context, op, key string) ([]Division, bool) {
	raw, err := r.cache.Get(ctx, key)
	if err != nil {
		if !redis.IsMiss(err) && r.logg != nil {
			r.logg.Warn(r.logg.WithField(ctx, "cache_key", key), "address cache read failed: "+err.Error())
		}
		r.metrics.CacheMiss(op)
		return nil, false
	}
	var divisions []Division
	if err := json.Unmarshal([]byte(raw), &divisions); err != nil {
		r.metrics.CacheMiss(op)
		return nil, false
	}
	r.metrics.CacheHit(op)
	return divisions, true
}

func (r *CachedRegistry) store(ctx context.Context, key string, divisions []Division) {
	if len(divisions) == 0 {
		return
	}
	payload, err := json.Marshal(divisions)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, payload, r.ttl); err != nil && r.logg != nil {
		r.logg.Warn(r.logg.WithField(ctx, "cache_key", key), "address cache write failed: "+err.Error())
	}
}
