package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuarter(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Quarter
		wantErr bool
	}{
		{name: "canonical", input: "2013Q2", want: Quarter{Year: 2013, Q: 2}},
		{name: "lower case with spaces", input: " 2014q4 ", want: Quarter{Year: 2014, Q: 4}},
		{name: "quarter out of range", input: "2013Q5", wantErr: true},
		{name: "missing year", input: "Q1", wantErr: true},
		{name: "missing quarter", input: "2013Q", wantErr: true},
		{name: "not a quarter", input: "2013-04", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuarter(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.String(), got.String())
		})
	}
}

func TestQuarterArithmetic(t *testing.T) {
	q := MustParseQuarter("2013Q2")

	assert.Equal(t, "2013Q2", q.String())
	assert.Equal(t, 0, q.Sub(q))
	assert.Equal(t, 3, MustParseQuarter("2014Q1").Sub(q))
	assert.Equal(t, -2, MustParseQuarter("2012Q4").Sub(q))
	assert.Equal(t, MustParseQuarter("2016Q2"), q.Add(12))
	assert.Equal(t, MustParseQuarter("2010Q2"), q.Add(-12))
	assert.Equal(t, MustParseQuarter("2012Q4"), MustParseQuarter("2013Q1").Add(-1))
	assert.True(t, MustParseQuarter("2012Q4").Before(q))
	assert.False(t, q.Before(q))
	assert.Equal(t, time.Date(2013, time.April, 1, 0, 0, 0, 0, time.UTC), q.Start())
}

func TestQuarterOfAndMonthOf(t *testing.T) {
	ts := time.Date(2013, time.June, 30, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "2013Q2", QuarterOf(ts).String())
	assert.Equal(t, "2013-06", MonthOf(ts).String())

	m, err := ParseMonth("2013-04")
	require.NoError(t, err)
	assert.Equal(t, Month{Year: 2013, Month: time.April}, m)

	_, err = ParseMonth("April")
	assert.Error(t, err)
}

func TestStoreSet(t *testing.T) {
	opened, err := ParseStoreDate("15/10/2012")
	require.NoError(t, err)

	set, err := NewStoreSet([]Store{
		{ID: "Hamburg", OpeningDate: opened},
		{ID: "Leipzig", OpeningDate: opened.AddDate(1, 0, 0)},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"Hamburg", "Leipzig"}, set.IDs())
	assert.Equal(t, 1, set.Position("Leipzig"))
	assert.Equal(t, -1, set.Position("Berlin"))

	st, ok := set.Get("Hamburg")
	require.True(t, ok)
	assert.Equal(t, "2012Q4", st.OpeningQuarter().String())

	_, err = NewStoreSet([]Store{{ID: "Hamburg"}, {ID: "Hamburg"}})
	assert.Error(t, err)

	_, err = ParseStoreDate("2012-10-15")
	assert.Error(t, err)
}

func TestPanelRowHelpers(t *testing.T) {
	row := PanelRow{
		PostCode:              "04109",
		NumberOfReturnedItems: 1,
		NumberOfItems:         4,
		QuartersSinceOpen:     map[string]int{"Leipzig": -3},
	}
	assert.InDelta(t, 0.25, row.ReturnRate(), 1e-9)

	clone := row.Clone()
	clone.QuartersSinceOpen["Leipzig"] = 7
	q, ok := row.QuartersSince("Leipzig")
	require.True(t, ok)
	assert.Equal(t, -3, q, "clone must not share the mapping")

	empty := PanelRow{}
	assert.Zero(t, empty.ReturnRate())

	geo := GeoRecord{Latitude: math.NaN(), Longitude: 12, Distances: map[string]float64{"Leipzig": math.NaN(), "Hamburg": 40}}
	assert.False(t, geo.HasCoordinates())
	_, ok = geo.Distance("Leipzig")
	assert.False(t, ok)
	d, ok := geo.Distance("Hamburg")
	require.True(t, ok)
	assert.Equal(t, 40.0, d)
}
