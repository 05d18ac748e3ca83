package tables

import (
	"fmt"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	apperrors "omnichannel/internal/errors"
	"omnichannel/pkg/contracts/domain"
)

// Order columns
const (
	ColOrderNumber      = "order_number"
	ColItemLineNumber   = "item_line_number"
	ColCancellationFlag = "cancellation_flag"
	ColReturnQuantity   = "return_quantity"
	ColWebshopCountry   = "webshop_country"
	ColOrderDate        = "order_date"
	ColPostCode         = "shipping_post_code"
	ColNetOrderValue    = "net_order_value_euros"
	ColQuantitySold     = "quantity_sold"
	ColYearQuarter      = "year_quarter"
	ColYearMonth        = "year_month"
)

// Treatment columns
const (
	ColTreatment               = "Treatment"
	ColPost                    = "Post"
	ColGroup                   = "Group"
	ColTreatmentStore          = "treatment_store"
	ColOpeningDate             = "treatment_store_opening_date"
	ColTreatmentStoreDistance  = "treatment_store_distance"
	ColNonTreatedStoreDistance = "non_treated_store_distance"
)

// orderDateLayout is how cleaned order dates are written
const orderDateLayout = "2006-01-02"

// CleanedOrderColumns is the column order of the cleaned order table
var CleanedOrderColumns = []string{
	ColOrderNumber, ColItemLineNumber, ColWebshopCountry, ColOrderDate, ColPostCode,
	ColNetOrderValue, ColReturnQuantity, ColYearQuarter, ColYearMonth,
}

// RawOrders reads the webshop export. Every cell is kept as text.
func RawOrders(df dataframe.DataFrame) ([]domain.RawOrder, error) {
	r, err := newReader(df, "orders",
		ColOrderNumber, ColItemLineNumber, ColWebshopCountry, ColOrderDate, ColPostCode, ColNetOrderValue)
	if err != nil {
		return nil, err
	}

	orderNo := r.strings(ColOrderNumber)
	line := r.strings(ColItemLineNumber)
	cancelled := r.strings(ColCancellationFlag)
	returned := r.strings(ColReturnQuantity)
	country := r.strings(ColWebshopCountry)
	date := r.strings(ColOrderDate)
	postCode := r.strings(ColPostCode)
	value := r.strings(ColNetOrderValue)
	sold := r.strings(ColQuantitySold)

	out := make([]domain.RawOrder, r.rows())
	for i := range out {
		out[i] = domain.RawOrder{
			OrderNumber:      orderNo[i],
			ItemLineNumber:   line[i],
			CancellationFlag: cancelled[i],
			ReturnQuantity:   returned[i],
			WebshopCountry:   country[i],
			OrderDate:        date[i],
			ShippingPostCode: postCode[i],
			NetOrderValue:    value[i],
			QuantitySold:     sold[i],
		}
	}
	return out, nil
}

// orderSeries returns the typed cleaned-order columns
func orderSeries(orders []domain.Order) []series.Series {
	n := len(orders)
	orderNo := make([]int, n)
	line := make([]int, n)
	country := make([]string, n)
	date := make([]string, n)
	postCode := make([]string, n)
	value := make([]float64, n)
	returned := make([]int, n)
	quarter := make([]string, n)
	month := make([]string, n)
	for i, o := range orders {
		orderNo[i] = int(o.OrderNumber)
		line[i] = int(o.ItemLineNumber)
		country[i] = o.Country
		date[i] = o.OrderDate.Format(orderDateLayout)
		postCode[i] = o.PostCode
		value[i] = o.NetOrderValue
		returned[i] = o.ReturnQuantity
		quarter[i] = o.YearQuarter.String()
		month[i] = o.YearMonth.String()
	}
	return []series.Series{
		series.New(orderNo, series.Int, ColOrderNumber),
		series.New(line, series.Int, ColItemLineNumber),
		series.New(country, series.String, ColWebshopCountry),
		series.New(date, series.String, ColOrderDate),
		series.New(postCode, series.String, ColPostCode),
		series.New(value, series.Float, ColNetOrderValue),
		series.New(returned, series.Int, ColReturnQuantity),
		series.New(quarter, series.String, ColYearQuarter),
		series.New(month, series.String, ColYearMonth),
	}
}

// FromOrders builds the cleaned order table
func FromOrders(orders []domain.Order) dataframe.DataFrame {
	return dataframe.New(orderSeries(orders)...)
}

// readOrders parses the cleaned order columns of r
func readOrders(r *reader) ([]domain.Order, error) {
	orderNo, err := r.ints(ColOrderNumber)
	if err != nil {
		return nil, err
	}
	line, err := r.ints(ColItemLineNumber)
	if err != nil {
		return nil, err
	}
	value, err := r.floats(ColNetOrderValue)
	if err != nil {
		return nil, err
	}
	returned, err := r.ints(ColReturnQuantity)
	if err != nil {
		return nil, err
	}
	country := r.strings(ColWebshopCountry)
	date := r.strings(ColOrderDate)
	postCode := r.strings(ColPostCode)

	out := make([]domain.Order, r.rows())
	for i := range out {
		t, err := time.Parse(orderDateLayout, date[i])
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s.%s row %d", r.table, ColOrderDate, i), err)
		}
		out[i] = domain.Order{
			OrderNumber:    int64(orderNo[i]),
			ItemLineNumber: int64(line[i]),
			Country:        country[i],
			OrderDate:      t,
			PostCode:       postCode[i],
			NetOrderValue:  value[i],
			ReturnQuantity: returned[i],
			YearQuarter:    domain.QuarterOf(t),
			YearMonth:      domain.MonthOf(t),
		}
	}
	return out, nil
}

// Orders reads a cleaned order table
func Orders(df dataframe.DataFrame) ([]domain.Order, error) {
	r, err := newReader(df, "cleaned orders", CleanedOrderColumns...)
	if err != nil {
		return nil, err
	}
	return readOrders(r)
}

// AnnotatedOrderColumns is the column order of the treatment-annotated table
var AnnotatedOrderColumns = append(append([]string{}, CleanedOrderColumns...),
	ColTreatment, ColPost, ColGroup, ColTreatmentStore, ColOpeningDate,
	ColTreatmentStoreDistance, ColNonTreatedStoreDistance,
)

// FromAnnotatedOrders builds the treatment-annotated order table
func FromAnnotatedOrders(orders []domain.AnnotatedOrder) dataframe.DataFrame {
	n := len(orders)
	plain := make([]domain.Order, n)
	treatment := make([]int, n)
	post := make([]int, n)
	group := make([]string, n)
	store := make([]string, n)
	opening := make([]string, n)
	treatedDist := make([]float64, n)
	untreatedDist := make([]float64, n)
	for i, o := range orders {
		plain[i] = o.Order
		treatment[i] = o.Treatment
		post[i] = o.Post
		group[i] = string(o.Group)
		store[i] = o.Store
		opening[i] = o.OpeningQuarter.String()
		treatedDist[i] = o.TreatmentStoreDistance
		untreatedDist[i] = o.NonTreatedStoreDistance
	}
	cols := orderSeries(plain)
	cols = append(cols,
		series.New(treatment, series.Int, ColTreatment),
		series.New(post, series.Int, ColPost),
		series.New(group, series.String, ColGroup),
		series.New(store, series.String, ColTreatmentStore),
		series.New(opening, series.String, ColOpeningDate),
		series.New(treatedDist, series.Float, ColTreatmentStoreDistance),
		series.New(untreatedDist, series.Float, ColNonTreatedStoreDistance),
	)
	return dataframe.New(cols...)
}

// AnnotatedOrders reads a treatment-annotated order table
func AnnotatedOrders(df dataframe.DataFrame) ([]domain.AnnotatedOrder, error) {
	r, err := newReader(df, "annotated orders", AnnotatedOrderColumns...)
	if err != nil {
		return nil, err
	}
	orders, err := readOrders(r)
	if err != nil {
		return nil, err
	}
	treatment, err := r.ints(ColTreatment)
	if err != nil {
		return nil, err
	}
	post, err := r.ints(ColPost)
	if err != nil {
		return nil, err
	}
	treatedDist, err := r.floats(ColTreatmentStoreDistance)
	if err != nil {
		return nil, err
	}
	untreatedDist, err := r.floats(ColNonTreatedStoreDistance)
	if err != nil {
		return nil, err
	}
	group := r.strings(ColGroup)
	store := r.strings(ColTreatmentStore)
	opening := r.strings(ColOpeningDate)

	out := make([]domain.AnnotatedOrder, len(orders))
	for i, o := range orders {
		g := domain.Group(group[i])
		if !g.IsValid() {
			return nil, apperrors.NewParsingError(fmt.Sprintf("annotated orders row %d: unknown group %q", i, group[i]), nil)
		}
		q, err := parseOptionalQuarter(opening[i])
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("annotated orders row %d", i), err)
		}
		out[i] = domain.AnnotatedOrder{
			Order:                   o,
			Treatment:               treatment[i],
			Post:                    post[i],
			Group:                   g,
			Store:                   store[i],
			OpeningQuarter:          q,
			TreatmentStoreDistance:  treatedDist[i],
			NonTreatedStoreDistance: untreatedDist[i],
		}
	}
	return out, nil
}

func parseOptionalQuarter(s string) (domain.Quarter, error) {
	switch s {
	case "", "NaN", "NA", "<nil>":
		return domain.Quarter{}, nil
	}
	return domain.ParseQuarter(s)
}
