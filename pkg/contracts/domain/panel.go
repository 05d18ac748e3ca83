package domain

import (
	"math"
	"sort"
)

// ControlLabelPrefix prefixes the treatment_store label of rows that act
// as controls for an analysis area, e.g. "control_Leipzig".
const ControlLabelPrefix = "control_"

// ControlLabel returns the control label for an area
func ControlLabel(area string) string {
	return ControlLabelPrefix + area
}

// Covariates are the per-postal-code attributes used for matching.
// Unknown values are NaN.
type Covariates struct {
	CreditScore        float64 `json:"credit_score"`
	PopulationDensity  float64 `json:"population_density_per_sqkm"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	BaselineOrderValue float64 `json:"order_value_baseline"`
}

// UnknownCovariates returns a Covariates value with every field NaN
func UnknownCovariates() Covariates {
	nan := math.NaN()
	return Covariates{
		CreditScore:        nan,
		PopulationDensity:  nan,
		Latitude:           nan,
		Longitude:          nan,
		BaselineOrderValue: nan,
	}
}

// SocioEconomic is one row of the external socio-economic table
type SocioEconomic struct {
	PostCode          string  `json:"shipping_post_code"`
	CreditScore       float64 `json:"credit_score"`
	PopulationDensity float64 `json:"population_density_per_sqkm"`
}

// PanelRow is one (postal code, quarter) observation of the balanced panel
type PanelRow struct {
	PostCode                string         `json:"shipping_post_code"`
	YearQuarter             Quarter        `json:"year_quarter"`
	OrderValue              float64        `json:"order_value"`
	NumberOfReturnedItems   int            `json:"number_of_returned_items"`
	NumberOfOrders          int            `json:"number_of_orders"`
	NumberOfItems           int            `json:"number_of_items"`
	Post                    int            `json:"Post"`
	TreatmentStore          string         `json:"treatment_store"`
	Treatment               int            `json:"Treatment"`
	Group                   Group          `json:"Group"`
	TreatmentStoreDistance  float64        `json:"treatment_store_distance"`
	NonTreatedStoreDistance float64        `json:"non_treated_store_distance"`
	OpeningQuarter          Quarter        `json:"treatment_store_opening_date"`
	QuartersSinceOpen       map[string]int `json:"q_since_open"`
	Covariates
}

// Clone returns a deep copy of the row
func (r PanelRow) Clone() PanelRow {
	out := r
	if r.QuartersSinceOpen != nil {
		out.QuartersSinceOpen = make(map[string]int, len(r.QuartersSinceOpen))
		for k, v := range r.QuartersSinceOpen {
			out.QuartersSinceOpen[k] = v
		}
	}
	return out
}

// QuartersSince returns the quarters elapsed since a store opened
func (r PanelRow) QuartersSince(store string) (int, bool) {
	q, ok := r.QuartersSinceOpen[store]
	return q, ok
}

// ReturnRate returns returned items over items, 0 when there were no items
func (r PanelRow) ReturnRate() float64 {
	if r.NumberOfItems == 0 {
		return 0
	}
	return float64(r.NumberOfReturnedItems) / float64(r.NumberOfItems)
}

// SortPanel orders rows by postal code then quarter
func SortPanel(rows []PanelRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].PostCode != rows[j].PostCode {
			return rows[i].PostCode < rows[j].PostCode
		}
		return rows[i].YearQuarter.Before(rows[j].YearQuarter)
	})
}

// Match links a treated postal code to one of its nearest controls
type Match struct {
	Treated  string  `json:"treated_post_code"`
	Control  string  `json:"control_post_code"`
	Rank     int     `json:"rank"`
	Distance float64 `json:"distance"`
}
