package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"omnichannel/internal/geocode"
	"omnichannel/internal/infrastructure"
	"omnichannel/pkg/contracts/domain"
)

// UnresolvedAddress is recorded when no source produced an address
const UnresolvedAddress = "unresolved"

// trustedCountries are the address suffixes accepted from the primary source
var trustedCountries = map[string]bool{
	"Germany":     true,
	"Switzerland": true,
	"Austria":     true,
}

// BatchResolver resolves many postal codes at once
type BatchResolver interface {
	Name() string
	ResolveBatch(ctx context.Context, keys []domain.GeoKey) (map[domain.GeoKey]geocode.Resolution, error)
}

// Report summarizes an enrichment run
type Report struct {
	PostCodes  int                      `json:"post_codes"`
	BySource   map[domain.GeoSource]int `json:"by_source"`
	Unresolved int                      `json:"unresolved"`
}

// Enricher attaches coordinates and store distances to postal codes.
// Sources are consulted in order: primary, secondary, tertiary.
type Enricher struct {
	sources []BatchResolver
	stores  *domain.StoreSet
	logger  *slog.Logger
}

// NewEnricher creates an enricher with up to three sources in priority order
func NewEnricher(stores *domain.StoreSet, logger *slog.Logger, sources ...BatchResolver) (*Enricher, error) {
	if stores == nil || stores.Len() == 0 {
		return nil, fmt.Errorf("enricher requires at least one store")
	}
	if len(sources) > 3 {
		return nil, fmt.Errorf("enricher supports at most 3 sources, got %d", len(sources))
	}
	return &Enricher{
		sources: sources,
		stores:  stores,
		logger:  infrastructure.WithComponent(logger, "enrich"),
	}, nil
}

// UniquePostCodes returns the distinct (country, postal code) pairs, sorted
func UniquePostCodes(orders []domain.Order) []domain.GeoKey {
	seen := make(map[domain.GeoKey]struct{})
	keys := make([]domain.GeoKey, 0)
	for _, o := range orders {
		k := o.GeoKey()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Country != keys[j].Country {
			return keys[i].Country < keys[j].Country
		}
		return keys[i].PostCode < keys[j].PostCode
	})
	return keys
}

// Enrich resolves every distinct postal code of orders and computes its
// distance to every store.
func (e *Enricher) Enrich(ctx context.Context, orders []domain.Order) ([]domain.GeoRecord, Report, error) {
	keys := UniquePostCodes(orders)

	candidates := make([]map[domain.GeoKey]geocode.Resolution, len(e.sources))
	pending := keys

	for i, src := range e.sources {
		if len(pending) == 0 {
			break
		}
		results, err := src.ResolveBatch(ctx, pending)
		if err != nil {
			return nil, Report{}, fmt.Errorf("resolve with %s: %w", src.Name(), err)
		}
		candidates[i] = results

		next := make([]domain.GeoKey, 0, len(pending))
		for _, k := range pending {
			res, ok := results[k]
			if !ok || !acceptable(i, res) {
				next = append(next, k)
			}
		}
		pending = next
	}

	report := Report{PostCodes: len(keys), BySource: make(map[domain.GeoSource]int)}
	records := make([]domain.GeoRecord, 0, len(keys))

	for _, k := range keys {
		choices := make([]*geocode.Resolution, 3)
		for i := range e.sources {
			if res, ok := candidates[i][k]; ok {
				r := res
				choices[i] = &r
			}
		}

		lat, lng, address, source := SelectCoordinates(choices[0], choices[1], choices[2])
		report.BySource[source]++
		if source == domain.GeoSourceNone {
			report.Unresolved++
		}

		records = append(records, domain.GeoRecord{
			Country:   k.Country,
			PostCode:  k.PostCode,
			Latitude:  lat,
			Longitude: lng,
			Address:   address,
			Source:    source,
			Distances: StoreDistances(lat, lng, e.stores),
		})
	}

	e.logger.InfoContext(ctx, "Postal codes enriched",
		slog.Int("post_codes", report.PostCodes),
		slog.Int("unresolved", report.Unresolved),
		slog.Int("stores", e.stores.Len()))

	return records, report, nil
}

// acceptable reports whether a result of the source at position i settles
// the postal code so later sources need not be asked
func acceptable(i int, res geocode.Resolution) bool {
	if i == 0 {
		return primaryTrusted(res)
	}
	return res.HasCoordinates()
}

// primaryTrusted accepts a primary result only when it has coordinates and
// its formatted address ends in one of the supported countries
func primaryTrusted(res geocode.Resolution) bool {
	if !res.HasCoordinates() {
		return false
	}
	parts := strings.Split(res.Address, ",")
	last := strings.TrimSpace(parts[len(parts)-1])
	return trustedCountries[last]
}

// SelectCoordinates applies the source priority policy. Any argument may be
// nil when that source was not consulted.
func SelectCoordinates(primary, secondary, tertiary *geocode.Resolution) (lat, lng float64, address string, source domain.GeoSource) {
	address = UnresolvedAddress
	if primary != nil && primary.Address != "" {
		address = primary.Address
	}

	switch {
	case primary != nil && primaryTrusted(*primary):
		return primary.Latitude, primary.Longitude, primary.Address, domain.GeoSourcePrimary
	case secondary != nil && secondary.HasCoordinates():
		return secondary.Latitude, secondary.Longitude, address, domain.GeoSourceSecondary
	case tertiary != nil && tertiary.HasCoordinates():
		return tertiary.Latitude, tertiary.Longitude, address, domain.GeoSourceTertiary
	}
	return math.NaN(), math.NaN(), address, domain.GeoSourceNone
}

// Index builds the lookup used to join geo records back onto orders
func Index(records []domain.GeoRecord) map[domain.GeoKey]domain.GeoRecord {
	idx := make(map[domain.GeoKey]domain.GeoRecord, len(records))
	for _, r := range records {
		idx[r.Key()] = r
	}
	return idx
}
