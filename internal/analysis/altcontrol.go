package analysis

import (
	"math"
	"sort"

	"omnichannel/pkg/contracts/domain"
)

// Split names one comparison series of the alternative-control view
type Split string

const (
	SplitTreated Split = "treated"
	SplitEarly   Split = "early_store"
	SplitNon     Split = "non_store"
	SplitMatched Split = "matched_control"
)

// splitOf classifies a row of an area's matched panel
func splitOf(r domain.PanelRow, area string) (Split, bool) {
	switch {
	case r.Group == domain.GroupMatchedControl:
		return SplitMatched, true
	case r.Group == domain.GroupTreatmentStore && r.TreatmentStore == area:
		return SplitTreated, true
	case r.Group == domain.GroupEarlyStore:
		return SplitEarly, true
	case r.Group == domain.GroupNonStore:
		return SplitNon, true
	}
	return "", false
}

// AltPoint is one quarter of an alternative-control series. Index values
// are relative to the opening quarter and NaN when the opening-quarter
// value is zero or missing.
type AltPoint struct {
	YearQuarter     domain.Quarter `json:"year_quarter"`
	QSinceOpen      int            `json:"q_since_open"`
	OrderValue      float64        `json:"order_value"`
	ReturnRate      float64        `json:"return_rate"`
	NumberOfOrders  float64        `json:"number_of_orders"`
	OrderValueIndex float64        `json:"order_value_index"`
	ReturnRateIndex float64        `json:"return_rate_index"`
	OrdersIndex     float64        `json:"number_of_orders_index"`
}

// AltSeries is the summed series of one split
type AltSeries struct {
	Split  Split      `json:"split"`
	Points []AltPoint `json:"points"`
}

// AlternativeControl sums the area's matched panel per split and quarter,
// recomputes the return rate from the sums and indexes every series on its
// value in the opening quarter (q_since_open == 0).
func AlternativeControl(panel []domain.PanelRow, area string) []AltSeries {
	type sums struct {
		quarter  domain.Quarter
		since    int
		value    float64
		returned int
		items    int
		orders   int
	}
	bySplit := make(map[Split]map[domain.Quarter]*sums)

	for _, r := range panel {
		split, ok := splitOf(r, area)
		if !ok {
			continue
		}
		since, ok := r.QuartersSince(area)
		if !ok {
			continue
		}
		quarters, ok := bySplit[split]
		if !ok {
			quarters = make(map[domain.Quarter]*sums)
			bySplit[split] = quarters
		}
		s, ok := quarters[r.YearQuarter]
		if !ok {
			s = &sums{quarter: r.YearQuarter, since: since}
			quarters[r.YearQuarter] = s
		}
		s.value += r.OrderValue
		s.returned += r.NumberOfReturnedItems
		s.items += r.NumberOfItems
		s.orders += r.NumberOfOrders
	}

	var out []AltSeries
	for _, split := range []Split{SplitTreated, SplitEarly, SplitNon, SplitMatched} {
		quarters, ok := bySplit[split]
		if !ok {
			continue
		}
		points := make([]AltPoint, 0, len(quarters))
		for _, s := range quarters {
			p := AltPoint{
				YearQuarter:    s.quarter,
				QSinceOpen:     s.since,
				OrderValue:     s.value,
				NumberOfOrders: float64(s.orders),
			}
			if s.items > 0 {
				p.ReturnRate = float64(s.returned) / float64(s.items)
			}
			points = append(points, p)
		}
		sort.Slice(points, func(i, j int) bool { return points[i].YearQuarter.Before(points[j].YearQuarter) })

		base := AltPoint{OrderValue: math.NaN(), ReturnRate: math.NaN(), NumberOfOrders: math.NaN()}
		for _, p := range points {
			if p.QSinceOpen == 0 {
				base = p
				break
			}
		}
		for i := range points {
			points[i].OrderValueIndex = index(points[i].OrderValue, base.OrderValue)
			points[i].ReturnRateIndex = index(points[i].ReturnRate, base.ReturnRate)
			points[i].OrdersIndex = index(points[i].NumberOfOrders, base.NumberOfOrders)
		}
		out = append(out, AltSeries{Split: split, Points: points})
	}
	return out
}

func index(v, base float64) float64 {
	if base == 0 || math.IsNaN(base) {
		return math.NaN()
	}
	return v / base
}
