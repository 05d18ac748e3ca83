package analysis

import (
	"fmt"
	"math"
	"sort"

	apperrors "omnichannel/internal/errors"
	"omnichannel/pkg/contracts/domain"
)

// SCM measure columns
const (
	ColOrderValue         = "order_value"
	ColReturnRate         = "return_rate"
	ColNumberOfOrders     = "number_of_orders"
	ColNumberOfItems      = "number_of_items"
	ColReturnedItems      = "number_of_returned_items"
	ColCreditScore        = "credit_score"
	ColPopulationDensity  = "population_density_per_sqkm"
	ColBaselineOrderValue = "order_value_baseline"
	ColLatitude           = "latitude"
	ColLongitude          = "longitude"
)

// DefaultSCMColumns are the measures carried into the synthetic-control panel
var DefaultSCMColumns = []string{
	ColOrderValue,
	ColReturnRate,
	ColNumberOfOrders,
	ColNumberOfItems,
	ColReturnedItems,
	ColCreditScore,
	ColPopulationDensity,
	ColBaselineOrderValue,
}

// measure extracts a named column from a panel row
func measure(r domain.PanelRow, col string) (float64, bool) {
	switch col {
	case ColOrderValue:
		return r.OrderValue, true
	case ColReturnRate:
		return r.ReturnRate(), true
	case ColNumberOfOrders:
		return float64(r.NumberOfOrders), true
	case ColNumberOfItems:
		return float64(r.NumberOfItems), true
	case ColReturnedItems:
		return float64(r.NumberOfReturnedItems), true
	case ColCreditScore:
		return r.CreditScore, true
	case ColPopulationDensity:
		return r.PopulationDensity, true
	case ColBaselineOrderValue:
		return r.BaselineOrderValue, true
	case ColLatitude:
		return r.Latitude, true
	case ColLongitude:
		return r.Longitude, true
	}
	return 0, false
}

// SCMRow is one (unit, quarter) observation of the synthetic-control panel.
// The treated postal codes of the area are collapsed into one unit named
// after the area; every control postal code is its own unit.
type SCMRow struct {
	Unit              string
	YearQuarter       domain.Quarter
	QSinceOpen        int
	QSinceObservation int
	Group             domain.Group
	Treatment         int
	Values            map[string]float64
}

// SCMConfig selects the area, window and columns of the panel
type SCMConfig struct {
	Area    string
	Before  int
	After   int
	Columns []string
}

// PrepareSCMPanel builds the synthetic-control panel for one area. Rows
// without a baseline order value are dropped, the panel is cut to the
// window around the area's opening and the area's treated postal codes are
// averaged per quarter.
func PrepareSCMPanel(panel []domain.PanelRow, cfg SCMConfig) ([]SCMRow, error) {
	columns := cfg.Columns
	if len(columns) == 0 {
		columns = DefaultSCMColumns
	}
	for _, c := range columns {
		if _, ok := measure(domain.PanelRow{}, c); !ok {
			return nil, apperrors.NewConfigError(fmt.Sprintf("unknown synthetic-control column %q", c), nil)
		}
	}
	if cfg.Before < 0 || cfg.After < 0 {
		return nil, apperrors.NewConfigError("window bounds must be non-negative", nil)
	}

	type unitQuarter struct {
		unit    string
		quarter domain.Quarter
	}
	type accumulator struct {
		row  SCMRow
		sums map[string]float64
		n    int
	}

	acc := make(map[unitQuarter]*accumulator)
	var order []unitQuarter
	areaKnown := false

	for _, r := range panel {
		since, ok := r.QuartersSince(cfg.Area)
		if !ok {
			continue
		}
		areaKnown = true
		if math.IsNaN(r.BaselineOrderValue) {
			continue
		}
		if r.TreatmentStore != cfg.Area && r.Treatment != 0 {
			continue
		}
		if since < -cfg.Before || since > cfg.After {
			continue
		}

		unit := r.PostCode
		if r.Treatment == 1 {
			unit = cfg.Area
		}
		key := unitQuarter{unit: unit, quarter: r.YearQuarter}
		a, ok := acc[key]
		if !ok {
			// The first row of a unit and quarter supplies its labels.
			a = &accumulator{
				row: SCMRow{
					Unit:        unit,
					YearQuarter: r.YearQuarter,
					QSinceOpen:  since,
					Group:       r.Group,
					Treatment:   r.Treatment,
				},
				sums: make(map[string]float64, len(columns)),
			}
			acc[key] = a
			order = append(order, key)
		}
		for _, c := range columns {
			v, _ := measure(r, c)
			a.sums[c] += v
		}
		a.n++
	}

	if !areaKnown && len(panel) > 0 {
		return nil, apperrors.NewConfigError(fmt.Sprintf("unknown analysis area %q", cfg.Area), nil)
	}

	out := make([]SCMRow, 0, len(order))
	minSince := 0
	for i, key := range order {
		a := acc[key]
		row := a.row
		row.Values = make(map[string]float64, len(columns))
		for _, c := range columns {
			row.Values[c] = a.sums[c] / float64(a.n)
		}
		if i == 0 || row.QSinceOpen < minSince {
			minSince = row.QSinceOpen
		}
		out = append(out, row)
	}
	for i := range out {
		out[i].QSinceObservation = out[i].QSinceOpen - minSince
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Unit != out[j].Unit {
			return out[i].Unit < out[j].Unit
		}
		return out[i].YearQuarter.Before(out[j].YearQuarter)
	})
	return out, nil
}

// SCMColumns returns the measure names present in rows, in the order given
// by DefaultSCMColumns followed by any others sorted by name
func SCMColumns(rows []SCMRow) []string {
	present := make(map[string]bool)
	for _, r := range rows {
		for c := range r.Values {
			present[c] = true
		}
	}
	var out []string
	for _, c := range DefaultSCMColumns {
		if present[c] {
			out = append(out, c)
			delete(present, c)
		}
	}
	rest := make([]string, 0, len(present))
	for c := range present {
		rest = append(rest, c)
	}
	sort.Strings(rest)
	return append(out, rest...)
}
