package aggregation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	apperrors "omnichannel/internal/errors"
	"omnichannel/internal/infrastructure"
	"omnichannel/pkg/contracts/domain"
)

// Config holds the aggregation policy
type Config struct {
	// ExcludedStores are border stores whose assigned rows are dropped
	ExcludedStores []string
}

// DefaultConfig excludes the Swiss border stores
func DefaultConfig() Config {
	return Config{ExcludedStores: []string{"Schaffhausen", "Basel", "Zurich"}}
}

// Report summarizes one aggregation
type Report struct {
	Input      int `json:"input"`
	Excluded   int `json:"excluded"`
	PostCodes  int `json:"post_codes"`
	Quarters   int `json:"quarters"`
	Rows       int `json:"rows"`
	FilledRows int `json:"filled_rows"`
}

// Aggregator builds the quarterly panel
type Aggregator struct {
	stores   *domain.StoreSet
	excluded map[string]bool
	logger   *slog.Logger
}

// NewAggregator creates an aggregator over the given store network
func NewAggregator(cfg Config, stores *domain.StoreSet, logger *slog.Logger) (*Aggregator, error) {
	if stores.Len() == 0 {
		return nil, apperrors.NewConfigError("aggregation requires at least one store", nil)
	}
	excluded := make(map[string]bool, len(cfg.ExcludedStores))
	for _, s := range cfg.ExcludedStores {
		excluded[s] = true
	}
	return &Aggregator{
		stores:   stores,
		excluded: excluded,
		logger:   infrastructure.WithComponent(logger, "aggregation"),
	}, nil
}

// invariants are the per-postal-code attributes that do not vary over time
type invariants struct {
	store          string
	treatment      int
	group          domain.Group
	treatmentDist  float64
	nonTreatedDist float64
	openingQuarter domain.Quarter
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

func (v invariants) equal(o invariants) bool {
	return v.store == o.store &&
		v.treatment == o.treatment &&
		v.group == o.group &&
		v.openingQuarter == o.openingQuarter &&
		sameFloat(v.treatmentDist, o.treatmentDist) &&
		sameFloat(v.nonTreatedDist, o.nonTreatedDist)
}

func invariantsOf(o domain.AnnotatedOrder) invariants {
	return invariants{
		store:          o.Store,
		treatment:      o.Treatment,
		group:          o.Group,
		treatmentDist:  o.TreatmentStoreDistance,
		nonTreatedDist: o.NonTreatedStoreDistance,
		openingQuarter: o.OpeningQuarter,
	}
}

type cellKey struct {
	postCode string
	quarter  domain.Quarter
}

type cell struct {
	value    float64
	returned int
	items    int
	post     int
	orders   map[int64]struct{}
}

// Aggregate builds the balanced panel sorted by postal code then quarter
func (a *Aggregator) Aggregate(ctx context.Context, orders []domain.AnnotatedOrder) ([]domain.PanelRow, Report, error) {
	start := time.Now()
	report := Report{Input: len(orders)}

	attrs := make(map[string]invariants)
	cells := make(map[cellKey]*cell)
	quarterSet := make(map[domain.Quarter]struct{})

	for i, o := range orders {
		if i%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, report, err
			}
		}
		if a.excluded[o.Store] {
			report.Excluded++
			continue
		}

		inv := invariantsOf(o)
		if prev, ok := attrs[o.PostCode]; ok {
			if !prev.equal(inv) {
				return nil, report, apperrors.NewInvariantError("time-invariant attributes differ within a postal code").
					WithContext("post_code", o.PostCode).
					WithContext("stores", fmt.Sprintf("%s/%s", prev.store, inv.store))
			}
		} else {
			attrs[o.PostCode] = inv
		}

		key := cellKey{postCode: o.PostCode, quarter: o.YearQuarter}
		c, ok := cells[key]
		if !ok {
			c = &cell{orders: make(map[int64]struct{})}
			cells[key] = c
		}
		c.items++
		c.returned += o.ReturnQuantity
		if !o.Returned() {
			c.value += o.NetOrderValue
		}
		c.orders[o.OrderNumber] = struct{}{}
		if o.Post > c.post {
			c.post = o.Post
		}
		quarterSet[o.YearQuarter] = struct{}{}
	}

	postCodes := make([]string, 0, len(attrs))
	for pc := range attrs {
		postCodes = append(postCodes, pc)
	}
	sort.Strings(postCodes)

	quarters := make([]domain.Quarter, 0, len(quarterSet))
	for q := range quarterSet {
		quarters = append(quarters, q)
	}
	sort.Slice(quarters, func(i, j int) bool { return quarters[i].Before(quarters[j]) })

	stores := a.stores.All()
	panel := make([]domain.PanelRow, 0, len(postCodes)*len(quarters))
	for _, pc := range postCodes {
		inv := attrs[pc]
		for _, q := range quarters {
			row := domain.PanelRow{
				PostCode:                pc,
				YearQuarter:             q,
				TreatmentStore:          inv.store,
				Treatment:               inv.treatment,
				Group:                   inv.group,
				TreatmentStoreDistance:  inv.treatmentDist,
				NonTreatedStoreDistance: inv.nonTreatedDist,
				OpeningQuarter:          inv.openingQuarter,
				QuartersSinceOpen:       make(map[string]int, len(stores)),
				Covariates:              domain.UnknownCovariates(),
			}
			if c, ok := cells[cellKey{postCode: pc, quarter: q}]; ok {
				row.OrderValue = c.value
				row.NumberOfReturnedItems = c.returned
				row.NumberOfOrders = len(c.orders)
				row.NumberOfItems = c.items
				row.Post = c.post
			} else {
				report.FilledRows++
			}
			for _, s := range stores {
				row.QuartersSinceOpen[s.ID] = q.Sub(s.OpeningQuarter())
			}
			panel = append(panel, row)
		}
	}

	report.PostCodes = len(postCodes)
	report.Quarters = len(quarters)
	report.Rows = len(panel)

	a.logger.InfoContext(ctx, "Panel aggregated",
		slog.Int("rows_in", report.Input),
		slog.Int("excluded", report.Excluded),
		slog.Int("post_codes", report.PostCodes),
		slog.Int("quarters", report.Quarters),
		slog.Int("rows_out", report.Rows),
		slog.Int("filled_rows", report.FilledRows),
		slog.Duration("duration", time.Since(start)))

	return panel, report, nil
}

// CheckBalanced verifies that every postal code has exactly one row per quarter
func CheckBalanced(panel []domain.PanelRow) error {
	perCode := make(map[string]map[domain.Quarter]bool)
	quarters := make(map[domain.Quarter]bool)
	for _, r := range panel {
		qs, ok := perCode[r.PostCode]
		if !ok {
			qs = make(map[domain.Quarter]bool)
			perCode[r.PostCode] = qs
		}
		if qs[r.YearQuarter] {
			return apperrors.NewInvariantError("duplicate panel row").
				WithContext("post_code", r.PostCode).
				WithContext("year_quarter", r.YearQuarter.String())
		}
		qs[r.YearQuarter] = true
		quarters[r.YearQuarter] = true
	}
	for pc, qs := range perCode {
		if len(qs) != len(quarters) {
			return apperrors.NewInvariantError("panel is not balanced").
				WithContext("post_code", pc).
				WithContext("quarters", len(qs)).
				WithContext("expected", len(quarters))
		}
	}
	return nil
}
