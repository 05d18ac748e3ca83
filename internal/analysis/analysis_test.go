package analysis

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "omnichannel/internal/errors"
	"omnichannel/pkg/contracts/domain"
)

var (
	leipzigOpen = domain.MustParseQuarter("2015Q1")
	dresdenOpen = domain.MustParseQuarter("2016Q2")
)

func row(pc string, q string, store string, treatment int, group domain.Group, value float64) domain.PanelRow {
	quarter := domain.MustParseQuarter(q)
	return domain.PanelRow{
		PostCode:                pc,
		YearQuarter:             quarter,
		OrderValue:              value,
		NumberOfOrders:          int(value / 10),
		NumberOfItems:           10,
		NumberOfReturnedItems:   2,
		TreatmentStore:          store,
		Treatment:               treatment,
		Group:                   group,
		TreatmentStoreDistance:  math.NaN(),
		NonTreatedStoreDistance: math.NaN(),
		QuartersSinceOpen: map[string]int{
			"Leipzig": quarter.Sub(leipzigOpen),
			"Dresden": quarter.Sub(dresdenOpen),
		},
		Covariates: domain.Covariates{CreditScore: 500, PopulationDensity: 1000, BaselineOrderValue: 100, Latitude: 51, Longitude: 12},
	}
}

func TestQuantile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		p      float64
		want   float64
	}{
		{name: "q25", values: []float64{4, 1, 3, 2}, p: 0.25, want: 1.75},
		{name: "median even", values: []float64{4, 1, 3, 2}, p: 0.5, want: 2.5},
		{name: "q75", values: []float64{4, 1, 3, 2}, p: 0.75, want: 3.25},
		{name: "single", values: []float64{7}, p: 0.75, want: 7},
		{name: "ignores NaN", values: []float64{1, math.NaN(), 3}, p: 0.5, want: 2},
		{name: "max", values: []float64{1, 2, 3}, p: 1, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Quantile(tt.values, tt.p), 1e-12)
		})
	}

	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

func TestQuartilesBucket(t *testing.T) {
	q := Quartiles{Q25: 10, Q50: 20, Q75: 30}

	tests := []struct {
		v    float64
		want int
	}{
		{v: 5, want: 1},
		{v: 10, want: 1},
		{v: 10.5, want: 2},
		{v: 20, want: 2},
		{v: 30, want: 3},
		{v: 31, want: 4},
		{v: math.NaN(), want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, q.Bucket(tt.v), "value %v", tt.v)
	}
}

func TestFeatures(t *testing.T) {
	near := row("04109", "2013Q2", "Leipzig", 1, domain.GroupTreatmentStore, 100)
	near.TreatmentStoreDistance = 0
	edge := row("04155", "2013Q2", "Leipzig", 1, domain.GroupTreatmentStore, 200)
	edge.TreatmentStoreDistance = 40
	edge.BaselineOrderValue = 200
	control := row("10115", "2013Q2", "control_Leipzig", 0, domain.GroupNonStore, 300)
	control.NonTreatedStoreDistance = 120
	control.BaselineOrderValue = 300
	late := row("04109", "2014Q1", "Leipzig", 1, domain.GroupTreatmentStore, 999)
	late.TreatmentStoreDistance = 0

	panel := []domain.PanelRow{near, edge, control, late}
	quartiles, err := BaselineQuartiles(panel, domain.MustParseQuarter("2013Q2"))
	require.NoError(t, err)
	out := Features(panel, quartiles)
	require.Len(t, out, 4)

	assert.Equal(t, Quartiles{Q25: 150, Q50: 200, Q75: 250}, quartiles)
	assert.Equal(t, [5]int{1, 0, 0, 0, 0}, out[0].Buckets)
	assert.Equal(t, [5]int{0, 0, 0, 0, 1}, out[1].Buckets)
	assert.Equal(t, [5]int{0, 0, 0, 0, 0}, out[2].Buckets)
	assert.Equal(t, 1, out[0].Quartile)
	assert.Equal(t, 2, out[1].Quartile)
	assert.Equal(t, 4, out[2].Quartile)

	assert.Equal(t, "dist_0_10km", DistanceBuckets[0].Name())
	assert.Equal(t, "dist_40_50km", DistanceBuckets[4].Name())

	_, err = BaselineQuartiles([]domain.PanelRow{near}, domain.MustParseQuarter("2010Q1"))
	assert.True(t, apperrors.IsConfig(err))
}

func TestBaselineQuartilesUseFullPanel(t *testing.T) {
	baseline := domain.MustParseQuarter("2013Q2")
	values := map[string]float64{"01001": 10, "01002": 50, "01003": 90, "01004": 95, "01005": 100}

	// full panel 2013Q1..2020Q4, one row per postal code and quarter
	var full []domain.PanelRow
	for q := domain.MustParseQuarter("2013Q1"); q.Before(domain.MustParseQuarter("2021Q1")); q = q.Add(1) {
		for _, pc := range []string{"01001", "01002", "01003", "01004", "01005"} {
			r := row(pc, q.String(), "control_Berlin", 0, domain.GroupNonStore, values[pc]*float64(1+q.Sub(baseline)))
			r.BaselineOrderValue = values[pc]
			full = append(full, r)
		}
	}
	quartiles, err := BaselineQuartiles(full, baseline)
	require.NoError(t, err)
	assert.Equal(t, Quartiles{Q25: 50, Q50: 90, Q75: 95}, quartiles)

	// a store opened 2018Q1 windows the panel past the baseline quarter;
	// the matched rows repeat a control under Matched_Control
	var windowed []domain.PanelRow
	for _, r := range full {
		if r.YearQuarter.Year < 2016 || r.PostCode == "01001" {
			continue
		}
		windowed = append(windowed, r)
		if r.PostCode == "01005" {
			dup := r.Clone()
			dup.Group = domain.GroupMatchedControl
			windowed = append(windowed, dup)
		}
	}
	_, err = BaselineQuartiles(windowed, baseline)
	require.Error(t, err, "baseline quarter is outside the window")

	out := Features(windowed, quartiles)
	require.Len(t, out, len(windowed))
	byCode := make(map[string]int)
	for _, f := range out {
		byCode[f.PostCode] = f.Quartile
	}
	assert.Equal(t, map[string]int{"01002": 1, "01003": 2, "01004": 3, "01005": 4}, byCode)
}

func TestBaselineQuartilesCountPostCodeOnce(t *testing.T) {
	a := row("04109", "2013Q2", "Leipzig", 1, domain.GroupTreatmentStore, 10)
	b := row("10115", "2013Q2", "control_Leipzig", 0, domain.GroupNonStore, 30)
	dup := b.Clone()
	dup.Group = domain.GroupMatchedControl

	quartiles, err := BaselineQuartiles([]domain.PanelRow{a, b, dup}, domain.MustParseQuarter("2013Q2"))
	require.NoError(t, err)
	assert.Equal(t, Quartiles{Q25: 15, Q50: 20, Q75: 25}, quartiles)
}

func TestRegressionFrame(t *testing.T) {
	pre := row("04109", "2015Q1", "Leipzig", 1, domain.GroupTreatmentStore, 99)
	pre.TreatmentStoreDistance = 15
	post := row("04109", "2015Q2", "Leipzig", 1, domain.GroupTreatmentStore, 99)
	post.TreatmentStoreDistance = 15
	matched := row("10115", "2015Q2", "control_Leipzig", 0, domain.GroupMatchedControl, 0)
	unmatched := row("10115", "2015Q2", "control_Leipzig", 0, domain.GroupNonStore, 0)
	other := row("01067", "2015Q2", "Dresden", 1, domain.GroupTreatmentStore, 0)

	features := Features([]domain.PanelRow{pre, post, matched, unmatched, other}, Quartiles{Q25: 50, Q50: 100, Q75: 150})

	frame, err := RegressionFrame(features, "Leipzig")
	require.NoError(t, err)
	require.Len(t, frame, 3)

	assert.Equal(t, 0, frame[0].PostOpen, "opening quarter is not post")
	assert.Equal(t, 0, frame[0].TreatmentPost)
	assert.InDelta(t, math.Log(100), frame[0].LogOrderValue, 1e-12)

	assert.Equal(t, 1, frame[1].PostOpen)
	assert.Equal(t, 1, frame[1].TreatmentPost)
	assert.Equal(t, [5]int{0, 1, 0, 0, 0}, frame[1].BucketPost)

	assert.Equal(t, domain.GroupMatchedControl, frame[2].Group)
	assert.Equal(t, 0, frame[2].TreatmentPost)
	assert.Equal(t, 0.0, frame[2].LogOrderValue)
}

func TestCohortExport(t *testing.T) {
	panel := []domain.PanelRow{
		row("01067", "2016Q3", "Dresden", 1, domain.GroupTreatmentStore, 50),
		row("01067", "2016Q2", "Dresden", 1, domain.GroupTreatmentStore, 40),
		row("04109", "2015Q1", "Leipzig", 1, domain.GroupTreatmentStore, 30),
		row("10115", "2015Q1", "control_Leipzig", 0, domain.GroupMatchedControl, 20),
	}

	out, err := CohortExport(panel, []string{"Leipzig", "Dresden"}, "Leipzig")
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Equal(t, []int{1, 1, 2, 3}, []int{out[0].ID, out[1].ID, out[2].ID, out[3].ID})
	assert.Equal(t, "01067", out[0].PostCode)
	assert.Equal(t, 5-CohortOffset, out[0].CountDate)
	assert.Equal(t, 6-CohortOffset, out[1].CountDate)
	assert.Equal(t, 5-CohortOffset, out[0].CohortDate, "Dresden opened five quarters after Leipzig")
	assert.Equal(t, -CohortOffset, out[2].CohortDate)
	assert.Equal(t, 0, out[3].CohortDate, "controls carry no adoption date")
	assert.InDelta(t, math.Log(41), out[0].LogOrderValue, 1e-12)
	assert.Equal(t, 100.0, out[0].BaselineOrderValue)

	_, err = CohortExport(panel, []string{"Leipzig"}, "Atlantis")
	assert.True(t, apperrors.IsConfig(err))
	_, err = CohortExport(panel, nil, "Leipzig")
	assert.True(t, apperrors.IsConfig(err))
}

func TestPrepareSCMPanel(t *testing.T) {
	a := row("04109", "2015Q1", "Leipzig", 1, domain.GroupTreatmentStore, 100)
	b := row("04155", "2015Q1", "Leipzig", 1, domain.GroupTreatmentStore, 300)
	b.NumberOfReturnedItems = 4
	c := row("10115", "2015Q1", "control_Leipzig", 0, domain.GroupNonStore, 50)
	c2 := row("10115", "2014Q4", "control_Leipzig", 0, domain.GroupNonStore, 60)
	noBaseline := row("20095", "2015Q1", "control_Leipzig", 0, domain.GroupNonStore, 70)
	noBaseline.BaselineOrderValue = math.NaN()
	outside := row("10115", "2011Q4", "control_Leipzig", 0, domain.GroupNonStore, 80)
	otherTreated := row("01067", "2015Q1", "Dresden", 1, domain.GroupTreatmentStore, 90)

	rows, err := PrepareSCMPanel(
		[]domain.PanelRow{a, b, c, c2, noBaseline, outside, otherTreated},
		SCMConfig{Area: "Leipzig", Before: 12, After: 12},
	)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "10115", rows[0].Unit)
	assert.Equal(t, "2014Q4", rows[0].YearQuarter.String())
	assert.Equal(t, 0, rows[0].QSinceObservation)
	assert.Equal(t, -1, rows[0].QSinceOpen)
	assert.Equal(t, 1, rows[1].QSinceObservation)

	area := rows[2]
	assert.Equal(t, "Leipzig", area.Unit)
	assert.Equal(t, 200.0, area.Values[ColOrderValue])
	assert.InDelta(t, 0.3, area.Values[ColReturnRate], 1e-12)
	assert.Equal(t, domain.GroupTreatmentStore, area.Group)

	_, err = PrepareSCMPanel([]domain.PanelRow{a}, SCMConfig{Area: "Atlantis"})
	assert.True(t, apperrors.IsConfig(err))
	_, err = PrepareSCMPanel([]domain.PanelRow{a}, SCMConfig{Area: "Leipzig", Columns: []string{"nope"}})
	assert.True(t, apperrors.IsConfig(err))

	assert.Equal(t, DefaultSCMColumns, SCMColumns(rows))
	assert.Equal(t, 10.0, area.Values[ColNumberOfItems])
	assert.Equal(t, 3.0, area.Values[ColReturnedItems])
}

func TestWinsorize(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = float64(i + 1)
	}
	out := Winsorize(values, 0.05, 0.05)
	assert.Equal(t, 2.0, out[0])
	assert.Equal(t, 19.0, out[19])
	assert.Equal(t, 10.0, out[9])
	assert.Equal(t, 1.0, values[0], "input untouched")

	assert.Equal(t, values, Winsorize(values, 0, 0))
}

func TestScale(t *testing.T) {
	tests := []struct {
		method ScaleMethod
		want   []float64
	}{
		{method: ScaleMinMax, want: []float64{0, 0.5, 1}},
		{method: ScaleMeanNormal, want: []float64{-0.5, 0, 0.5}},
		{method: ScaleStandard, want: []float64{-1, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			rows := []SCMRow{
				{Values: map[string]float64{"x": 1, "y": 5}},
				{Values: map[string]float64{"x": 2, "y": 5}},
				{Values: map[string]float64{"x": 3, "y": 5}},
			}
			require.NoError(t, Scale(rows, ScaleSpecs([]string{"x", "y"}, tt.method, false, 0, 0)))
			for i, w := range tt.want {
				assert.InDelta(t, w, rows[i].Values["x"], 1e-12)
				assert.Equal(t, 0.0, rows[i].Values["y"], "constant column")
			}
		})
	}

	rows := []SCMRow{{Values: map[string]float64{"x": 1}}}
	require.NoError(t, Scale(rows, nil))
	assert.Equal(t, 1.0, rows[0].Values["x"])

	assert.True(t, apperrors.IsConfig(Scale(rows, []ScaleSpec{{Column: "x", Method: "log"}})))
	assert.True(t, apperrors.IsConfig(Scale(rows, []ScaleSpec{{Column: "z", Method: ScaleMinMax}})))
	assert.Nil(t, ScaleSpecs([]string{"x"}, "", true, 0.05, 0.05))
}

func scmRows() []SCMRow {
	mk := func(unit string, values ...float64) []SCMRow {
		var out []SCMRow
		for i, v := range values {
			out = append(out, SCMRow{Unit: unit, QSinceOpen: i - 2, Values: map[string]float64{ColOrderValue: v}})
		}
		return out
	}
	var rows []SCMRow
	rows = append(rows, mk("Leipzig", 10, 12, 14, 30, 32)...)
	rows = append(rows, mk("10115", 10, 12, 14, 16, 18)...)
	rows = append(rows, mk("20095", 20, 20, 20, 20, 20)...)
	rows = append(rows, mk("30159", 10, 13, 14, 17, 18)...)
	return rows
}

// firstDonor puts all weight on the first donor
var firstDonor = SolverFunc(func(_ context.Context, p FitProblem) (map[string]float64, error) {
	return map[string]float64{p.Donors[0].Unit: 1}, nil
})

func TestFitAndReport(t *testing.T) {
	res, err := Fit(context.Background(), firstDonor, scmRows(), ColOrderValue, "Leipzig")
	require.NoError(t, err)

	assert.Equal(t, []int{-2, -1, 0, 1, 2}, res.Periods)
	assert.Equal(t, []float64{10, 12, 14, 16, 18}, res.Synthetic)

	placebos, err := Placebos(context.Background(), firstDonor, scmRows(), ColOrderValue, "Leipzig")
	require.NoError(t, err)
	require.Len(t, placebos, 3)
	for _, p := range placebos {
		assert.NotContains(t, p.Weights, "Leipzig")
	}

	report := Report(res, placebos)
	require.Len(t, report.Effects, 5)
	assert.Equal(t, 0.0, report.Effects[2].Effect)
	assert.Equal(t, 0.0, report.Effects[2].Cumulative, "opening quarter is pre-period")
	assert.Equal(t, 14.0, report.Effects[3].Effect)
	assert.Equal(t, 28.0, report.Effects[4].Cumulative)
	assert.Equal(t, 0.0, report.Fit.PreRMSPE)
	assert.Equal(t, 14.0, report.Fit.PostRMSPE)
	assert.True(t, math.IsInf(report.Fit.Ratio, 1))
	assert.Equal(t, 1, report.Rank)
	assert.InDelta(t, 0.25, report.PValue, 1e-12)
}

func TestFitErrors(t *testing.T) {
	_, err := Fit(context.Background(), firstDonor, scmRows(), ColOrderValue, "Atlantis")
	assert.True(t, apperrors.IsConfig(err))

	_, err = Fit(context.Background(), firstDonor, scmRows(), "missing", "Leipzig")
	assert.True(t, apperrors.IsConfig(err))

	boom := errors.New("solver diverged")
	failing := SolverFunc(func(context.Context, FitProblem) (map[string]float64, error) { return nil, boom })
	_, err = Fit(context.Background(), failing, scmRows(), ColOrderValue, "Leipzig")
	assert.ErrorIs(t, err, boom)
}

func TestAlternativeControl(t *testing.T) {
	panel := []domain.PanelRow{
		row("04109", "2014Q4", "Leipzig", 1, domain.GroupTreatmentStore, 100),
		row("04109", "2015Q1", "Leipzig", 1, domain.GroupTreatmentStore, 200),
		row("04155", "2015Q1", "Leipzig", 1, domain.GroupTreatmentStore, 200),
		row("04109", "2015Q2", "Leipzig", 1, domain.GroupTreatmentStore, 600),
		row("20095", "2015Q1", "control_Leipzig", 0, domain.GroupEarlyStore, 50),
		row("20095", "2015Q2", "control_Leipzig", 0, domain.GroupEarlyStore, 25),
		row("10115", "2015Q2", "control_Leipzig", 0, domain.GroupMatchedControl, 10),
	}

	series := AlternativeControl(panel, "Leipzig")
	require.Len(t, series, 3)

	treated := series[0]
	assert.Equal(t, SplitTreated, treated.Split)
	require.Len(t, treated.Points, 3)
	assert.Equal(t, 400.0, treated.Points[1].OrderValue)
	assert.InDelta(t, 0.25, treated.Points[0].OrderValueIndex, 1e-12)
	assert.InDelta(t, 1.0, treated.Points[1].OrderValueIndex, 1e-12)
	assert.InDelta(t, 1.5, treated.Points[2].OrderValueIndex, 1e-12)
	assert.InDelta(t, 0.2, treated.Points[1].ReturnRate, 1e-12)
	assert.InDelta(t, 1.0, treated.Points[1].ReturnRateIndex, 1e-12)

	early := series[1]
	assert.Equal(t, SplitEarly, early.Split)
	assert.InDelta(t, 0.5, early.Points[1].OrderValueIndex, 1e-12)

	matched := series[2]
	assert.Equal(t, SplitMatched, matched.Split)
	assert.True(t, math.IsNaN(matched.Points[0].OrderValueIndex), "no opening-quarter observation")
}
