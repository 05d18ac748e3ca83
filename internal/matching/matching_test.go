package matching

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "omnichannel/internal/errors"
	"omnichannel/pkg/contracts/domain"
)

func testStores(t *testing.T) *domain.StoreSet {
	t.Helper()
	set, err := domain.NewStoreSet([]domain.Store{
		{ID: "Leipzig", OpeningDate: time.Date(2015, 3, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "Dresden", OpeningDate: time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	return set
}

// series builds one row per quarter from 2010Q1 to 2020Q4 for a postal code
func series(pc, store string, treatment int, group domain.Group, cov domain.Covariates) []domain.PanelRow {
	stores := map[string]domain.Quarter{
		"Leipzig": domain.MustParseQuarter("2015Q1"),
		"Dresden": domain.MustParseQuarter("2016Q2"),
	}
	var rows []domain.PanelRow
	end := domain.MustParseQuarter("2021Q1")
	for q := domain.MustParseQuarter("2010Q1"); q.Before(end); q = q.Add(1) {
		since := make(map[string]int, len(stores))
		for id, opened := range stores {
			since[id] = q.Sub(opened)
		}
		rows = append(rows, domain.PanelRow{
			PostCode:          pc,
			YearQuarter:       q,
			OrderValue:        100,
			TreatmentStore:    store,
			Treatment:         treatment,
			Group:             group,
			QuartersSinceOpen: since,
			Covariates:        cov,
		})
	}
	return rows
}

func cov(credit, density, baseline float64) domain.Covariates {
	return domain.Covariates{CreditScore: credit, PopulationDensity: density, BaselineOrderValue: baseline, Latitude: 51, Longitude: 12}
}

func testPanel() []domain.PanelRow {
	var panel []domain.PanelRow
	panel = append(panel, series("04109", "Leipzig", 1, domain.GroupTreatmentStore, cov(500, 3000, 100))...)
	panel = append(panel, series("04155", "Leipzig", 1, domain.GroupTreatmentStore, cov(520, 2000, 80))...)
	panel = append(panel, series("01067", "Dresden", 1, domain.GroupTreatmentStore, cov(500, 3000, 100))...)
	panel = append(panel, series("04600", "Leipzig", 0, domain.GroupNonStore, cov(510, 2900, 90))...)
	panel = append(panel, series("10115", "Dresden", 0, domain.GroupNonStore, cov(900, 100, 10))...)
	panel = append(panel, series("20095", "Dresden", 0, domain.GroupEarlyStore, cov(math.NaN(), 100, 10))...)
	return panel
}

func TestNewWindow(t *testing.T) {
	_, err := NewWindow("Atlantis", 12, 12, testStores(t))
	assert.True(t, apperrors.IsConfig(err))

	_, err = NewWindow("Leipzig", -1, 12, testStores(t))
	assert.True(t, apperrors.IsConfig(err))

	w, err := NewWindow("Leipzig", 12, 12, testStores(t))
	require.NoError(t, err)
	assert.True(t, w.Contains(-12))
	assert.True(t, w.Contains(12))
	assert.False(t, w.Contains(13))
	assert.False(t, w.Contains(-13))
}

func TestWindowSelectLeipzig(t *testing.T) {
	w, err := NewWindow("Leipzig", 12, 12, testStores(t))
	require.NoError(t, err)

	got := w.Select(testPanel())

	postCodes := make(map[string]int)
	for _, r := range got {
		offset, ok := r.QuartersSince("Leipzig")
		require.True(t, ok)
		assert.GreaterOrEqual(t, offset, -12)
		assert.LessOrEqual(t, offset, 12)

		assert.True(t, r.TreatmentStore == "Leipzig" || r.Treatment == 0, "row %s has store %s", r.PostCode, r.TreatmentStore)
		if r.TreatmentStore != "Leipzig" {
			assert.Equal(t, "control_Leipzig", r.TreatmentStore)
		}
		postCodes[r.PostCode]++
	}

	// 25 quarters per postal code, each row once; treated Dresden codes are out.
	assert.Equal(t, map[string]int{"04109": 25, "04155": 25, "04600": 25, "10115": 25, "20095": 25}, postCodes)

	for _, r := range got {
		if r.PostCode == "04600" {
			assert.Equal(t, "Leipzig", r.TreatmentStore, "untreated rows of the area keep its label")
		}
	}
}

func TestWindowSelectDoesNotMutateInput(t *testing.T) {
	panel := testPanel()
	w, err := NewWindow("Leipzig", 12, 12, testStores(t))
	require.NoError(t, err)

	_ = w.Select(panel)
	for _, r := range panel {
		assert.NotContains(t, r.TreatmentStore, domain.ControlLabelPrefix)
	}
}

func TestMatch(t *testing.T) {
	w, err := NewWindow("Leipzig", 12, 12, testStores(t))
	require.NoError(t, err)
	windowed := w.Select(testPanel())

	m, err := NewMatcher(1, nil)
	require.NoError(t, err)

	out, matches, report, err := m.Match(context.Background(), windowed)
	require.NoError(t, err)

	assert.Equal(t, "2012Q1", report.Reference)
	assert.Equal(t, 2, report.Treated)
	assert.Equal(t, 2, report.Controls)
	assert.Equal(t, 1, report.Ineligible)

	assert.Equal(t, []domain.Match{
		{Treated: "04109", Control: "04600", Rank: 1, Distance: matches[0].Distance},
		{Treated: "04155", Control: "04600", Rank: 1, Distance: matches[1].Distance},
	}, matches)

	// With replacement: 04600 is appended once per match.
	assert.Len(t, out, len(windowed)+2*25)
	matched := 0
	for _, r := range out {
		if r.Group == domain.GroupMatchedControl {
			assert.Equal(t, "04600", r.PostCode)
			assert.Equal(t, 0, r.Treatment)
			matched++
		}
	}
	assert.Equal(t, 50, matched)
}

func TestMatchIsDeterministic(t *testing.T) {
	panel := testPanel()
	// Two equidistant controls: ties go to the lower postal code.
	panel = append(panel, series("04567", "Leipzig", 0, domain.GroupNonStore, cov(510, 2900, 90))...)

	w, err := NewWindow("Leipzig", 12, 12, testStores(t))
	require.NoError(t, err)
	m, err := NewMatcher(2, nil)
	require.NoError(t, err)

	_, first, _, err := m.Match(context.Background(), w.Select(panel))
	require.NoError(t, err)
	require.NotEmpty(t, first)
	assert.Equal(t, "04567", first[0].Control)
	assert.Equal(t, "04600", first[1].Control)

	for i := 0; i < 20; i++ {
		_, again, _, err := m.Match(context.Background(), w.Select(panel))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMatchRejectsDuplicateReferenceRows(t *testing.T) {
	rows := series("04109", "Leipzig", 1, domain.GroupTreatmentStore, cov(1, 1, 1))
	rows = append(rows, rows[0])

	m, err := NewMatcher(1, nil)
	require.NoError(t, err)
	_, _, _, err = m.Match(context.Background(), rows)
	assert.True(t, apperrors.IsInvariant(err))
}

func TestMatchEmptyAndConfig(t *testing.T) {
	_, err := NewMatcher(0, nil)
	assert.True(t, apperrors.IsConfig(err))

	m, err := NewMatcher(1, nil)
	require.NoError(t, err)
	out, matches, _, err := m.Match(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, matches)
}

func TestAttach(t *testing.T) {
	q1 := domain.MustParseQuarter("2013Q1")
	q2 := domain.MustParseQuarter("2013Q2")
	panel := []domain.PanelRow{
		{PostCode: "04109", YearQuarter: q1, OrderValue: 10},
		{PostCode: "04109", YearQuarter: q2, OrderValue: 20},
		{PostCode: "10115", YearQuarter: q1, OrderValue: 5},
		{PostCode: "99999", YearQuarter: q2, OrderValue: 7},
	}
	socio := []domain.SocioEconomic{{PostCode: "04109", CreditScore: 600, PopulationDensity: 3000}}
	geo := []domain.GeoRecord{
		{PostCode: "04109", Latitude: 51.3, Longitude: 12.4},
		{PostCode: "10115", Latitude: 52.5, Longitude: 13.4},
		{PostCode: "99999", Latitude: math.NaN(), Longitude: math.NaN()},
	}

	tests := []struct {
		name        string
		drop        bool
		wantRows    int
		wantDropped int
	}{
		{name: "drop missing geo", drop: true, wantRows: 3, wantDropped: 1},
		{name: "keep missing geo", drop: false, wantRows: 4, wantDropped: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, report := Attach(panel, socio, geo, JoinConfig{Baseline: q2, DropMissingGeo: tt.drop})
			require.Len(t, out, tt.wantRows)
			assert.Equal(t, tt.wantDropped, report.DroppedRows)
			assert.Equal(t, 1, report.MissingGeo)

			assert.Equal(t, 600.0, out[0].CreditScore)
			assert.Equal(t, 20.0, out[0].BaselineOrderValue)
			assert.Equal(t, 20.0, out[1].BaselineOrderValue)
			assert.Equal(t, 51.3, out[0].Latitude)

			assert.True(t, math.IsNaN(out[2].CreditScore))
			assert.True(t, math.IsNaN(out[2].BaselineOrderValue), "no row in the baseline quarter")
			assert.Equal(t, 52.5, out[2].Latitude)
		})
	}

	assert.Equal(t, 0.0, panel[0].CreditScore, "input untouched")
}
