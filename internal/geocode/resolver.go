package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"omnichannel/internal/infrastructure"
	"omnichannel/pkg/contracts/domain"
)

// ResolverConfig tunes how a provider is called
type ResolverConfig struct {
	// RatePerSecond caps provider calls; cache hits are not throttled
	RatePerSecond float64
	Burst         int
	// Workers bounds concurrent lookups in a batch
	Workers int
	// Timeout bounds a single provider call; 0 disables it
	Timeout time.Duration
}

// DefaultResolverConfig returns conservative settings for a paid API
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{RatePerSecond: 10, Burst: 5, Workers: 8, Timeout: 10 * time.Second}
}

// Resolver wraps a Provider with memoisation, duplicate suppression and
// rate limiting. Provider failures degrade to unresolved results.
type Resolver struct {
	provider Provider
	cache    *Cache
	limiter  *rate.Limiter
	group    singleflight.Group
	cfg      ResolverConfig
	metrics  *infrastructure.PipelineMetrics
	logger   *slog.Logger

	mu       sync.Mutex
	failures int
}

// NewResolver creates a resolver. cache and metrics may be nil.
func NewResolver(provider Provider, cache *Cache, cfg ResolverConfig, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *Resolver {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Resolver{
		provider: provider,
		cache:    cache,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		cfg:      cfg,
		metrics:  metrics,
		logger:   infrastructure.WithComponent(logger, "geocode").With("provider", provider.Name()),
	}
}

// Name returns the wrapped provider's name
func (r *Resolver) Name() string { return r.provider.Name() }

// Failures returns how many provider calls failed so far
func (r *Resolver) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

// Resolve looks up one postal code. Only context cancellation is returned
// as an error; every other failure yields an unresolved result.
func (r *Resolver) Resolve(ctx context.Context, key domain.GeoKey) (Resolution, error) {
	cacheKey := Key(r.provider.Name(), key)

	if r.cache != nil {
		res, ok, err := r.cache.Get(cacheKey)
		if err != nil {
			r.logger.WarnContext(ctx, "Geocode cache read failed", slog.String("error", err.Error()))
		} else if ok {
			r.metrics.RecordGeocode(ctx, r.provider.Name(), res.HasCoordinates(), true)
			return res, nil
		}
	}

	v, err, _ := r.group.Do(cacheKey, func() (interface{}, error) {
		return r.lookup(ctx, key, cacheKey)
	})
	if err != nil {
		return Unresolved(domain.CountryName(key.Country)), err
	}
	return v.(Resolution), nil
}

func (r *Resolver) lookup(ctx context.Context, key domain.GeoKey, cacheKey string) (Resolution, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Resolution{}, fmt.Errorf("wait for rate limiter: %w", err)
	}

	callCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	res, err := r.provider.Resolve(callCtx, key.Country, key.PostCode)
	if err != nil {
		if ctx.Err() != nil {
			return Resolution{}, ctx.Err()
		}
		r.mu.Lock()
		r.failures++
		r.mu.Unlock()
		r.logger.WarnContext(ctx, "Geocoding failed, leaving postal code unresolved",
			slog.String("country", key.Country),
			slog.String("postal_code", key.PostCode),
			slog.String("error", err.Error()))
		r.metrics.RecordGeocode(ctx, r.provider.Name(), false, false)
		// Failures are not cached so a later run can retry them.
		return Unresolved(domain.CountryName(key.Country)), nil
	}

	if r.cache != nil {
		if err := r.cache.Put(cacheKey, res); err != nil {
			r.logger.WarnContext(ctx, "Geocode cache write failed", slog.String("error", err.Error()))
		}
	}

	r.metrics.RecordGeocode(ctx, r.provider.Name(), res.HasCoordinates(), false)
	return res, nil
}

// ResolveBatch resolves every key with at most cfg.Workers lookups in flight
func (r *Resolver) ResolveBatch(ctx context.Context, keys []domain.GeoKey) (map[domain.GeoKey]Resolution, error) {
	results := make(map[domain.GeoKey]Resolution, len(keys))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			res, err := r.Resolve(gctx, key)
			if err != nil {
				return err
			}
			mu.Lock()
			results[key] = res
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve batch with %s: %w", r.provider.Name(), err)
	}

	r.logger.InfoContext(ctx, "Geocoding batch complete",
		slog.Int("postal_codes", len(keys)),
		slog.Int("failures", r.Failures()))

	return results, nil
}
