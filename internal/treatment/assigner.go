package treatment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	apperrors "omnichannel/internal/errors"
	"omnichannel/internal/infrastructure"
	"omnichannel/pkg/contracts/domain"
)

// Config holds the assignment policy
type Config struct {
	// TreatDistanceKm is the exclusive radius around a store
	TreatDistanceKm float64
	// Countries lists the webshop countries kept in the study
	Countries []string
	// EarlyStoreCutoff reclassifies stores opened before it as early stores
	EarlyStoreCutoff time.Time
	// IgnoredStores are never treatment candidates
	IgnoredStores []string
}

// DefaultConfig returns the standard policy: 50 km, Germany, 1 April 2013
func DefaultConfig() Config {
	return Config{
		TreatDistanceKm:  50,
		Countries:        []string{domain.CountryGermany},
		EarlyStoreCutoff: time.Date(2013, time.April, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Outcome describes what happened to one order
type Outcome string

const (
	OutcomeAssigned        Outcome = "assigned"
	OutcomeCountryExcluded Outcome = "country_excluded"
	OutcomeNoGeo           Outcome = "no_geo_record"
	OutcomeNoStoreDistance Outcome = "no_store_distance"
)

// Policy is a compiled Config bound to a store set
type Policy struct {
	cfg       Config
	stores    *domain.StoreSet
	countries map[string]bool
	ignored   map[string]bool
}

// NewPolicy validates cfg against the stores
func NewPolicy(cfg Config, stores *domain.StoreSet) (*Policy, error) {
	if stores == nil || stores.Len() == 0 {
		return nil, apperrors.NewConfigError("treatment assignment requires at least one store", nil)
	}
	if cfg.TreatDistanceKm <= 0 {
		return nil, apperrors.NewConfigError(fmt.Sprintf("treat distance must be positive, got %v", cfg.TreatDistanceKm), nil)
	}
	if len(cfg.Countries) == 0 {
		return nil, apperrors.NewConfigError("at least one country is required", nil)
	}

	p := &Policy{
		cfg:       cfg,
		stores:    stores,
		countries: make(map[string]bool, len(cfg.Countries)),
		ignored:   make(map[string]bool, len(cfg.IgnoredStores)),
	}
	for _, c := range cfg.Countries {
		p.countries[c] = true
	}
	for _, s := range cfg.IgnoredStores {
		if _, ok := stores.Get(s); !ok {
			return nil, apperrors.NewConfigError(fmt.Sprintf("ignored store %s is not a known store", s), nil)
		}
		p.ignored[s] = true
	}
	return p, nil
}

// nearest returns the closest store with a known distance, optionally only
// those within the treatment radius. Stores are scanned in metadata order
// and a later store must be strictly closer to win, so ties go to the store
// listed first.
func (p *Policy) nearest(geo domain.GeoRecord, withinRadius bool) (domain.Store, float64, bool) {
	var (
		best     domain.Store
		bestDist = math.Inf(1)
		found    bool
	)
	for _, s := range p.stores.All() {
		if p.ignored[s.ID] {
			continue
		}
		d, ok := geo.Distance(s.ID)
		if !ok {
			continue
		}
		if withinRadius && !(d < p.cfg.TreatDistanceKm) {
			continue
		}
		if d < bestDist {
			best, bestDist, found = s, d, true
		}
	}
	return best, bestDist, found
}

// Assign classifies a single order. It never mutates its inputs.
// A non-assigned outcome means the order is dropped from the study.
func (p *Policy) Assign(order domain.Order, geo domain.GeoRecord) (domain.AnnotatedOrder, Outcome, error) {
	if !p.countries[order.Country] {
		return domain.AnnotatedOrder{}, OutcomeCountryExcluded, nil
	}

	out := domain.AnnotatedOrder{
		Order:                   order,
		TreatmentStoreDistance:  math.NaN(),
		NonTreatedStoreDistance: math.NaN(),
	}

	store, dist, treated := p.nearest(geo, true)
	switch {
	case treated && store.OpenedBefore(p.cfg.EarlyStoreCutoff):
		out.Treatment = 0
		out.Group = domain.GroupEarlyStore
		out.NonTreatedStoreDistance = dist
	case treated:
		out.Treatment = 1
		out.Group = domain.GroupTreatmentStore
		out.TreatmentStoreDistance = dist
	default:
		var ok bool
		store, dist, ok = p.nearest(geo, false)
		if !ok {
			return domain.AnnotatedOrder{}, OutcomeNoStoreDistance, nil
		}
		out.Treatment = 0
		out.Group = domain.GroupNonStore
		out.NonTreatedStoreDistance = dist
	}

	out.Store = store.ID
	out.OpeningQuarter = store.OpeningQuarter()
	if order.OrderDate.After(store.OpeningDate) {
		out.Post = 1
	}

	if err := checkAssignment(out); err != nil {
		return domain.AnnotatedOrder{}, "", err
	}
	return out, OutcomeAssigned, nil
}

// checkAssignment verifies the Treatment/Group/distance combination
func checkAssignment(o domain.AnnotatedOrder) error {
	treatedDist := !math.IsNaN(o.TreatmentStoreDistance)
	untreatedDist := !math.IsNaN(o.NonTreatedStoreDistance)

	switch {
	case treatedDist == untreatedDist:
		return apperrors.NewInvariantError("exactly one of treatment and non-treated distance must be set").
			WithContext("post_code", o.PostCode).
			WithContext("order_number", o.OrderNumber)
	case o.Treatment == 1 && o.Group != domain.GroupTreatmentStore:
		return apperrors.NewInvariantError(fmt.Sprintf("treated order in group %s", o.Group)).
			WithContext("post_code", o.PostCode)
	case o.Treatment == 0 && o.Group == domain.GroupTreatmentStore:
		return apperrors.NewInvariantError("untreated order in group Treatment_Store").
			WithContext("post_code", o.PostCode)
	case o.Treatment == 1 && !treatedDist:
		return apperrors.NewInvariantError("treated order without treatment distance").
			WithContext("post_code", o.PostCode)
	}
	return nil
}

// Report counts the outcome of every order
type Report struct {
	Input    int                  `json:"input"`
	Output   int                  `json:"output"`
	Outcomes map[Outcome]int      `json:"outcomes"`
	Groups   map[domain.Group]int `json:"groups"`
}

// DroppedByReason returns non-assigned outcomes keyed by plain strings
func (r Report) DroppedByReason() map[string]int {
	out := make(map[string]int)
	for k, v := range r.Outcomes {
		if k != OutcomeAssigned {
			out[string(k)] = v
		}
	}
	return out
}

// Assigner applies a Policy to a whole order set
type Assigner struct {
	policy *Policy
	logger *slog.Logger
}

// NewAssigner creates an assigner
func NewAssigner(policy *Policy, logger *slog.Logger) *Assigner {
	return &Assigner{policy: policy, logger: infrastructure.WithComponent(logger, "treatment")}
}

// AssignAll annotates every order that has a geo record. Orders of other
// countries and orders whose postal code has no distance to any store are
// dropped and counted. An invariant violation aborts the whole set.
func (a *Assigner) AssignAll(ctx context.Context, orders []domain.Order, geo map[domain.GeoKey]domain.GeoRecord) ([]domain.AnnotatedOrder, Report, error) {
	report := Report{
		Input:    len(orders),
		Outcomes: make(map[Outcome]int),
		Groups:   make(map[domain.Group]int),
	}
	out := make([]domain.AnnotatedOrder, 0, len(orders))

	for _, o := range orders {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}

		rec, ok := geo[o.GeoKey()]
		if !ok {
			if !a.policy.countries[o.Country] {
				report.Outcomes[OutcomeCountryExcluded]++
			} else {
				report.Outcomes[OutcomeNoGeo]++
			}
			continue
		}

		annotated, outcome, err := a.policy.Assign(o, rec)
		if err != nil {
			return nil, report, fmt.Errorf("assign order %d: %w", o.OrderNumber, err)
		}
		report.Outcomes[outcome]++
		if outcome != OutcomeAssigned {
			continue
		}
		report.Groups[annotated.Group]++
		out = append(out, annotated)
	}

	report.Output = len(out)

	a.logger.InfoContext(ctx, "Treatment assigned",
		slog.Int("rows_in", report.Input),
		slog.Int("rows_out", report.Output),
		slog.Int("treated", report.Groups[domain.GroupTreatmentStore]),
		slog.Int("early_store", report.Groups[domain.GroupEarlyStore]),
		slog.Int("non_store", report.Groups[domain.GroupNonStore]),
		slog.Any("dropped_by_reason", report.DroppedByReason()))

	return out, report, nil
}
