package main

import (
	"fmt"
	"log/slog"

	"omnichannel/internal/config"
	"omnichannel/internal/enrich"
	apperrors "omnichannel/internal/errors"
	"omnichannel/internal/geocode"
	"omnichannel/internal/infrastructure"
)

// geocoderChain owns the resolvers of the enrich step and their cache
type geocoderChain struct {
	resolvers []enrich.BatchResolver
	cache     *geocode.Cache
}

// newGeocoders builds one resolver per configured provider, in priority
// order. Only the remote provider is cached and throttled.
func newGeocoders(cfg config.GeocodingConfig, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) (*geocoderChain, error) {
	if len(cfg.Providers) == 0 {
		return nil, apperrors.NewConfigError("geocoding.providers is empty", nil)
	}

	chain := &geocoderChain{}
	local := geocode.ResolverConfig{Workers: cfg.Workers}

	for _, name := range cfg.Providers {
		switch name {
		case geocode.ProviderGoogle:
			provider, err := geocode.NewGoogleProvider(cfg.GoogleAPIKey, logger)
			if err != nil {
				chain.Close()
				return nil, apperrors.NewConfigError("create google geocoder", err)
			}
			if chain.cache == nil {
				cache, err := geocode.OpenCache(geocode.CacheConfig{
					Path:     cfg.CacheDir,
					InMemory: cfg.CacheInMemory,
					Logger:   logger,
				})
				if err != nil {
					return nil, apperrors.NewStorageError("open geocode cache", err)
				}
				chain.cache = cache
			}
			remote := geocode.ResolverConfig{
				RatePerSecond: cfg.RatePerSecond,
				Burst:         cfg.Burst,
				Workers:       cfg.Workers,
				Timeout:       cfg.Timeout,
			}
			chain.add(geocode.NewResolver(provider, chain.cache, remote, metrics, logger))
		case geocode.ProviderGeoNames:
			provider, err := geocode.LoadGeoNames(cfg.GeoNamesFile, logger)
			if err != nil {
				chain.Close()
				return nil, err
			}
			chain.add(geocode.NewResolver(provider, nil, local, metrics, logger))
		case geocode.ProviderCentroids:
			provider, err := geocode.LoadCentroids(cfg.CentroidFile, logger)
			if err != nil {
				chain.Close()
				return nil, err
			}
			chain.add(geocode.NewResolver(provider, nil, local, metrics, logger))
		default:
			chain.Close()
			return nil, apperrors.NewConfigError(fmt.Sprintf("unknown geocoding provider %q", name), nil)
		}
	}
	return chain, nil
}

func (c *geocoderChain) add(r *geocode.Resolver) {
	c.resolvers = append(c.resolvers, r)
}

// Close releases the cache
func (c *geocoderChain) Close() error {
	if c.cache == nil {
		return nil
	}
	err := c.cache.Close()
	c.cache = nil
	if err != nil {
		return fmt.Errorf("close geocode cache: %w", err)
	}
	return nil
}
