package analysis

import (
	"fmt"
	"math"
	"sort"

	apperrors "omnichannel/internal/errors"
	"omnichannel/pkg/contracts/domain"
)

// CohortOffset shifts the anchor's quarters-since-opening so that the
// export's time index starts near zero
const CohortOffset = 12

// CohortRow is one row of the staggered-adoption export
type CohortRow struct {
	LogOrderValue      float64 `json:"log_order_value"`
	OrderValue         float64 `json:"order_value"`
	CountDate          int     `json:"Count_date"`
	ID                 int     `json:"id"`
	CohortDate         int     `json:"cohort_date"`
	Treatment          int     `json:"Treatment"`
	CreditScore        float64 `json:"credit_score"`
	PopulationDensity  float64 `json:"population_density_per_sqkm"`
	BaselineOrderValue float64 `json:"order_value_firstQ"`
	PostCode           string  `json:"-"`
}

// CohortExport lays several matched area panels on the anchor store's time
// axis. Count_date is the anchor's quarters since opening minus
// CohortOffset; an area's treated rows carry the area's adoption date on
// that axis as cohort_date, every other row 0. Rows are numbered by postal
// code and sorted by id then Count_date.
func CohortExport(panel []domain.PanelRow, areas []string, anchor string) ([]CohortRow, error) {
	if len(areas) == 0 {
		return nil, apperrors.NewConfigError("cohort export requires at least one area", nil)
	}
	isArea := make(map[string]bool, len(areas))
	for _, a := range areas {
		isArea[a] = true
	}

	offsets := make(map[string][]float64, len(areas))
	for _, r := range panel {
		anchorSince, ok := r.QuartersSince(anchor)
		if !ok {
			return nil, apperrors.NewConfigError(fmt.Sprintf("unknown anchor store %q", anchor), nil)
		}
		if !isArea[r.TreatmentStore] || r.Treatment != 1 {
			continue
		}
		areaSince, ok := r.QuartersSince(r.TreatmentStore)
		if !ok {
			return nil, apperrors.NewConfigError(fmt.Sprintf("unknown area %q", r.TreatmentStore), nil)
		}
		countDate := anchorSince - CohortOffset
		offsets[r.TreatmentStore] = append(offsets[r.TreatmentStore], float64(countDate-areaSince))
	}

	cohort := make(map[string]int, len(offsets))
	for area, diffs := range offsets {
		cohort[area] = int(mostFrequent(diffs, 0))
	}

	codes := make([]string, 0)
	seen := make(map[string]bool)
	for _, r := range panel {
		if !seen[r.PostCode] {
			seen[r.PostCode] = true
			codes = append(codes, r.PostCode)
		}
	}
	sort.Strings(codes)
	ids := make(map[string]int, len(codes))
	for i, pc := range codes {
		ids[pc] = i + 1
	}

	out := make([]CohortRow, 0, len(panel))
	for _, r := range panel {
		anchorSince, _ := r.QuartersSince(anchor)
		row := CohortRow{
			LogOrderValue:      math.Log(r.OrderValue + 1),
			OrderValue:         r.OrderValue,
			CountDate:          anchorSince - CohortOffset,
			ID:                 ids[r.PostCode],
			Treatment:          r.Treatment,
			CreditScore:        r.CreditScore,
			PopulationDensity:  r.PopulationDensity,
			BaselineOrderValue: r.BaselineOrderValue,
			PostCode:           r.PostCode,
		}
		if r.Treatment == 1 && isArea[r.TreatmentStore] {
			row.CohortDate = cohort[r.TreatmentStore]
		}
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].CountDate < out[j].CountDate
	})
	return out, nil
}
