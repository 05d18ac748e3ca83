package analysis

import (
	"fmt"
	"math"

	apperrors "omnichannel/internal/errors"
	"omnichannel/pkg/contracts/domain"
)

// DistanceBucket is a half-open band [Lower, Upper) of treatment distance in km
type DistanceBucket struct {
	Lower float64
	Upper float64
}

// Name returns the dummy column name, e.g. "dist_0_10km"
func (b DistanceBucket) Name() string {
	return fmt.Sprintf("dist_%g_%gkm", b.Lower, b.Upper)
}

// Contains reports whether d lies in the band. NaN is in no band.
func (b DistanceBucket) Contains(d float64) bool {
	return d >= b.Lower && d < b.Upper
}

// DistanceBuckets are the treatment distance bands up to the 50 km radius
var DistanceBuckets = [5]DistanceBucket{
	{0, 10}, {10, 20}, {20, 30}, {30, 40}, {40, 50},
}

// FeatureRow is a panel row with its DiD covariates
type FeatureRow struct {
	domain.PanelRow
	// Buckets holds one dummy per DistanceBuckets entry
	Buckets [5]int
	// Quartile of the baseline order value, 1 to 4; 0 when unknown
	Quartile int
}

// Quartiles are the cut points of the baseline order value distribution
type Quartiles struct {
	Q25, Q50, Q75 float64
}

// Bucket returns 1 for v <= Q25, 2 for v <= Q50, 3 for v <= Q75, else 4.
// NaN maps to 0.
func (q Quartiles) Bucket(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= q.Q25:
		return 1
	case v <= q.Q50:
		return 2
	case v <= q.Q75:
		return 3
	}
	return 4
}

// BaselineQuartiles computes the quartiles of order value at the baseline
// quarter. panel is the full joined panel, before windowing and matching;
// each postal code counts once.
func BaselineQuartiles(panel []domain.PanelRow, baseline domain.Quarter) (Quartiles, error) {
	seen := make(map[string]bool)
	var values []float64
	for _, r := range panel {
		if r.YearQuarter != baseline || seen[r.PostCode] {
			continue
		}
		seen[r.PostCode] = true
		values = append(values, r.OrderValue)
	}
	if len(values) == 0 {
		return Quartiles{}, apperrors.NewConfigError(fmt.Sprintf("baseline quarter %s is not in the panel", baseline), nil)
	}
	return Quartiles{
		Q25: Quantile(values, 0.25),
		Q50: Quantile(values, 0.50),
		Q75: Quantile(values, 0.75),
	}, nil
}

// Features adds distance band dummies and the baseline quartile to every
// row. Untreated rows have no treatment distance and so all-zero dummies.
func Features(panel []domain.PanelRow, quartiles Quartiles) []FeatureRow {
	out := make([]FeatureRow, 0, len(panel))
	for _, r := range panel {
		row := FeatureRow{PanelRow: r.Clone(), Quartile: quartiles.Bucket(r.BaselineOrderValue)}
		for i, b := range DistanceBuckets {
			if b.Contains(r.TreatmentStoreDistance) {
				row.Buckets[i] = 1
			}
		}
		out = append(out, row)
	}
	return out
}

// RegressionRow is one observation of the DiD regression frame
type RegressionRow struct {
	FeatureRow
	// PostOpen is 1 once the area's store has been open a full quarter
	PostOpen      int
	LogOrderValue float64
	TreatmentPost int
	BucketPost    [5]int
}

// RegressionFrame keeps the area's treated rows and its matched controls
// and derives the interaction terms
func RegressionFrame(features []FeatureRow, area string) ([]RegressionRow, error) {
	control := domain.ControlLabel(area)
	out := make([]RegressionRow, 0, len(features))
	for _, f := range features {
		if f.TreatmentStore != area && f.TreatmentStore != control {
			continue
		}
		if f.Treatment != 1 && f.Group != domain.GroupMatchedControl {
			continue
		}
		since, ok := f.QuartersSince(area)
		if !ok {
			return nil, apperrors.NewConfigError(fmt.Sprintf("no quarters since opening for area %q", area), nil).
				WithContext("post_code", f.PostCode)
		}

		row := RegressionRow{
			FeatureRow:    f,
			LogOrderValue: math.Log(f.OrderValue + 1),
		}
		if since > 0 {
			row.PostOpen = 1
		}
		row.TreatmentPost = f.Treatment * row.PostOpen
		for i := range f.Buckets {
			row.BucketPost[i] = f.Buckets[i] * row.PostOpen
		}
		out = append(out, row)
	}
	return out, nil
}
