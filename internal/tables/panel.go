package tables

import (
	"fmt"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	apperrors "omnichannel/internal/errors"
	"omnichannel/pkg/contracts/domain"
)

// Panel columns
const (
	ColOrderValue            = "order_value"
	ColNumberOfReturnedItems = "number_of_returned_items"
	ColNumberOfOrders        = "number_of_orders"
	ColNumberOfItems         = "number_of_items"
	ColBaselineOrderValue    = "order_value_baseline"
	sinceOpenPrefix          = "q_since_open_"
)

// SinceOpenColumn names the quarters-since-opening column of a store
func SinceOpenColumn(storeID string) string {
	return sinceOpenPrefix + storeID
}

// PanelColumns is the fixed part of the panel schema
var PanelColumns = []string{
	ColPostCode, ColYearQuarter, ColOrderValue, ColNumberOfReturnedItems, ColNumberOfOrders,
	ColNumberOfItems, ColTreatmentStore, ColTreatmentStoreDistance, ColNonTreatedStoreDistance,
	ColOpeningDate, ColGroup, ColTreatment, ColPost,
}

// CovariateColumns follow the fixed panel columns once covariates are attached
var CovariateColumns = []string{
	ColCreditScore, ColPopulationDensity, ColLatitude, ColLongitude, ColBaselineOrderValue,
}

// FromPanel builds the panel table: the fixed columns, optionally the
// covariates, then one q_since_open column per store in metadata order
func FromPanel(rows []domain.PanelRow, stores *domain.StoreSet, withCovariates bool) dataframe.DataFrame {
	n := len(rows)
	postCode := make([]string, n)
	quarter := make([]string, n)
	value := make([]float64, n)
	returned := make([]int, n)
	orders := make([]int, n)
	items := make([]int, n)
	store := make([]string, n)
	treatedDist := make([]float64, n)
	untreatedDist := make([]float64, n)
	opening := make([]string, n)
	group := make([]string, n)
	treatment := make([]int, n)
	post := make([]int, n)
	covariates := make([][]float64, len(CovariateColumns))
	for j := range covariates {
		covariates[j] = make([]float64, n)
	}

	for i, r := range rows {
		postCode[i] = r.PostCode
		quarter[i] = r.YearQuarter.String()
		value[i] = r.OrderValue
		returned[i] = r.NumberOfReturnedItems
		orders[i] = r.NumberOfOrders
		items[i] = r.NumberOfItems
		store[i] = r.TreatmentStore
		treatedDist[i] = r.TreatmentStoreDistance
		untreatedDist[i] = r.NonTreatedStoreDistance
		opening[i] = r.OpeningQuarter.String()
		group[i] = string(r.Group)
		treatment[i] = r.Treatment
		post[i] = r.Post
		covariates[0][i] = r.CreditScore
		covariates[1][i] = r.PopulationDensity
		covariates[2][i] = r.Latitude
		covariates[3][i] = r.Longitude
		covariates[4][i] = r.BaselineOrderValue
	}

	cols := []series.Series{
		series.New(postCode, series.String, ColPostCode),
		series.New(quarter, series.String, ColYearQuarter),
		series.New(value, series.Float, ColOrderValue),
		series.New(returned, series.Int, ColNumberOfReturnedItems),
		series.New(orders, series.Int, ColNumberOfOrders),
		series.New(items, series.Int, ColNumberOfItems),
		series.New(store, series.String, ColTreatmentStore),
		series.New(treatedDist, series.Float, ColTreatmentStoreDistance),
		series.New(untreatedDist, series.Float, ColNonTreatedStoreDistance),
		series.New(opening, series.String, ColOpeningDate),
		series.New(group, series.String, ColGroup),
		series.New(treatment, series.Int, ColTreatment),
		series.New(post, series.Int, ColPost),
	}
	if withCovariates {
		for j, name := range CovariateColumns {
			cols = append(cols, series.New(covariates[j], series.Float, name))
		}
	}
	for _, id := range stores.IDs() {
		since := make([]int, n)
		for i, r := range rows {
			since[i] = r.QuartersSinceOpen[id]
		}
		cols = append(cols, series.New(since, series.Int, SinceOpenColumn(id)))
	}
	return dataframe.New(cols...)
}

// Panel reads a panel table. Every q_since_open_<store> column is read,
// whether or not the store is still in the metadata; absent covariates
// are NaN.
func Panel(df dataframe.DataFrame) ([]domain.PanelRow, error) {
	r, err := newReader(df, "panel", PanelColumns...)
	if err != nil {
		return nil, err
	}

	value, err := r.floats(ColOrderValue)
	if err != nil {
		return nil, err
	}
	ints := make(map[string][]int)
	for _, c := range []string{ColNumberOfReturnedItems, ColNumberOfOrders, ColNumberOfItems, ColTreatment, ColPost} {
		if ints[c], err = r.ints(c); err != nil {
			return nil, err
		}
	}
	floats := make(map[string][]float64)
	for _, c := range append([]string{ColTreatmentStoreDistance, ColNonTreatedStoreDistance}, CovariateColumns...) {
		if floats[c], err = r.floats(c); err != nil {
			return nil, err
		}
	}
	since := make(map[string][]int)
	for _, name := range df.Names() {
		if id, ok := strings.CutPrefix(name, sinceOpenPrefix); ok {
			if since[id], err = r.ints(name); err != nil {
				return nil, err
			}
		}
	}
	postCode := r.strings(ColPostCode)
	quarter := r.strings(ColYearQuarter)
	store := r.strings(ColTreatmentStore)
	opening := r.strings(ColOpeningDate)
	group := r.strings(ColGroup)

	out := make([]domain.PanelRow, r.rows())
	for i := range out {
		q, err := domain.ParseQuarter(quarter[i])
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("panel row %d", i), err)
		}
		opened, err := parseOptionalQuarter(opening[i])
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("panel row %d", i), err)
		}
		g := domain.Group(group[i])
		if !g.IsValid() {
			return nil, apperrors.NewParsingError(fmt.Sprintf("panel row %d: unknown group %q", i, group[i]), nil)
		}
		row := domain.PanelRow{
			PostCode:                postCode[i],
			YearQuarter:             q,
			OrderValue:              value[i],
			NumberOfReturnedItems:   ints[ColNumberOfReturnedItems][i],
			NumberOfOrders:          ints[ColNumberOfOrders][i],
			NumberOfItems:           ints[ColNumberOfItems][i],
			Post:                    ints[ColPost][i],
			TreatmentStore:          store[i],
			Treatment:               ints[ColTreatment][i],
			Group:                   g,
			TreatmentStoreDistance:  floats[ColTreatmentStoreDistance][i],
			NonTreatedStoreDistance: floats[ColNonTreatedStoreDistance][i],
			OpeningQuarter:          opened,
			QuartersSinceOpen:       make(map[string]int, len(since)),
			Covariates: domain.Covariates{
				CreditScore:        floats[ColCreditScore][i],
				PopulationDensity:  floats[ColPopulationDensity][i],
				Latitude:           floats[ColLatitude][i],
				Longitude:          floats[ColLongitude][i],
				BaselineOrderValue: floats[ColBaselineOrderValue][i],
			},
		}
		for id, v := range since {
			row.QuartersSinceOpen[id] = v[i]
		}
		out[i] = row
	}
	return out, nil
}
