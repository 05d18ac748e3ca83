package matching

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	apperrors "omnichannel/internal/errors"
	"omnichannel/internal/infrastructure"
	"omnichannel/pkg/contracts/domain"
)

// Report summarizes one matching run
type Report struct {
	Reference  string `json:"reference_quarter"`
	Treated    int    `json:"treated"`
	Controls   int    `json:"controls"`
	Ineligible int    `json:"ineligible"`
	Matches    int    `json:"matches"`
	Appended   int    `json:"appended_rows"`
}

// Matcher pairs treated postal codes with their nearest untreated ones on
// credit score, population density and baseline order value.
// Matching is with replacement.
type Matcher struct {
	k      int
	logger *slog.Logger
}

// NewMatcher creates a matcher returning k neighbours per treated postal code
func NewMatcher(k int, logger *slog.Logger) (*Matcher, error) {
	if k < 1 {
		return nil, apperrors.NewConfigError(fmt.Sprintf("neighbours must be at least 1, got %d", k), nil)
	}
	return &Matcher{k: k, logger: infrastructure.WithComponent(logger, "matching")}, nil
}

type unit struct {
	postCode string
	features [3]float64
}

func features(r domain.PanelRow) ([3]float64, bool) {
	f := [3]float64{r.CreditScore, r.PopulationDensity, r.BaselineOrderValue}
	for _, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return f, false
		}
	}
	return f, true
}

func euclidean(a, b [3]float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ReferenceQuarter returns the earliest quarter of a windowed panel
func ReferenceQuarter(windowed []domain.PanelRow) (domain.Quarter, bool) {
	var ref domain.Quarter
	found := false
	for _, r := range windowed {
		if !found || r.YearQuarter.Before(ref) {
			ref, found = r.YearQuarter, true
		}
	}
	return ref, found
}

// Match finds the neighbours of every treated postal code and returns the
// windowed panel followed by the full series of each matched control,
// relabelled Matched_Control. A control matched n times is appended n times.
func (m *Matcher) Match(ctx context.Context, windowed []domain.PanelRow) ([]domain.PanelRow, []domain.Match, Report, error) {
	var report Report

	ref, ok := ReferenceQuarter(windowed)
	if !ok {
		return nil, nil, report, nil
	}
	report.Reference = ref.String()

	var treated, controls []unit
	seen := make(map[string]bool)
	for _, r := range windowed {
		if r.YearQuarter != ref {
			continue
		}
		if seen[r.PostCode] {
			return nil, nil, report, apperrors.NewInvariantError("postal code repeated in reference quarter").
				WithContext("post_code", r.PostCode).
				WithContext("year_quarter", ref.String())
		}
		seen[r.PostCode] = true

		f, eligible := features(r)
		if !eligible {
			report.Ineligible++
			continue
		}
		u := unit{postCode: r.PostCode, features: f}
		if r.Treatment == 1 {
			treated = append(treated, u)
		} else {
			controls = append(controls, u)
		}
	}

	byPostCode := func(units []unit) {
		sort.SliceStable(units, func(i, j int) bool { return units[i].postCode < units[j].postCode })
	}
	byPostCode(treated)
	byPostCode(controls)
	report.Treated = len(treated)
	report.Controls = len(controls)

	if len(treated) > 0 && len(controls) == 0 {
		m.logger.WarnContext(ctx, "No eligible controls in reference quarter",
			slog.String("reference_quarter", ref.String()),
			slog.Int("treated", len(treated)))
	}

	type candidate struct {
		idx  int
		dist float64
	}

	matches := make([]domain.Match, 0, len(treated)*m.k)
	for _, t := range treated {
		if err := ctx.Err(); err != nil {
			return nil, nil, report, err
		}
		cands := make([]candidate, len(controls))
		for i, c := range controls {
			cands[i] = candidate{idx: i, dist: euclidean(t.features, c.features)}
		}
		// Controls are already in postal code order, so a stable sort
		// breaks distance ties by postal code.
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })

		for rank := 0; rank < m.k && rank < len(cands); rank++ {
			matches = append(matches, domain.Match{
				Treated:  t.postCode,
				Control:  controls[cands[rank].idx].postCode,
				Rank:     rank + 1,
				Distance: cands[rank].dist,
			})
		}
	}
	report.Matches = len(matches)

	series := make(map[string][]domain.PanelRow)
	for _, r := range windowed {
		if r.Treatment == 0 {
			series[r.PostCode] = append(series[r.PostCode], r)
		}
	}

	out := make([]domain.PanelRow, 0, len(windowed))
	for _, r := range windowed {
		out = append(out, r.Clone())
	}
	for _, match := range matches {
		for _, r := range series[match.Control] {
			row := r.Clone()
			row.Group = domain.GroupMatchedControl
			out = append(out, row)
			report.Appended++
		}
	}

	m.logger.InfoContext(ctx, "Controls matched",
		slog.String("reference_quarter", report.Reference),
		slog.Int("treated", report.Treated),
		slog.Int("controls", report.Controls),
		slog.Int("ineligible", report.Ineligible),
		slog.Int("matches", report.Matches),
		slog.Int("rows_out", len(out)))

	return out, matches, report, nil
}
