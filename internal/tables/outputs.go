package tables

import (
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"omnichannel/internal/analysis"
	"omnichannel/pkg/contracts/domain"
)

// FromMatches builds the treated-to-control match table
func FromMatches(matches []domain.Match) dataframe.DataFrame {
	n := len(matches)
	treated := make([]string, n)
	control := make([]string, n)
	rank := make([]int, n)
	dist := make([]float64, n)
	for i, m := range matches {
		treated[i] = m.Treated
		control[i] = m.Control
		rank[i] = m.Rank
		dist[i] = m.Distance
	}
	return dataframe.New(
		series.New(treated, series.String, "treated_post_code"),
		series.New(control, series.String, "control_post_code"),
		series.New(rank, series.Int, "rank"),
		series.New(dist, series.Float, "distance"),
	)
}

// FromRegressionFrame builds the DiD regression table
func FromRegressionFrame(rows []analysis.RegressionRow) dataframe.DataFrame {
	n := len(rows)
	postCode := make([]string, n)
	quarter := make([]string, n)
	store := make([]string, n)
	group := make([]string, n)
	value := make([]float64, n)
	logValue := make([]float64, n)
	treatment := make([]int, n)
	post := make([]int, n)
	treatmentPost := make([]int, n)
	quartile := make([]int, n)
	baseline := make([]float64, n)
	credit := make([]float64, n)
	density := make([]float64, n)
	buckets := make([][]int, len(analysis.DistanceBuckets))
	bucketPost := make([][]int, len(analysis.DistanceBuckets))
	for b := range buckets {
		buckets[b] = make([]int, n)
		bucketPost[b] = make([]int, n)
	}

	for i, r := range rows {
		postCode[i] = r.PostCode
		quarter[i] = r.YearQuarter.String()
		store[i] = r.TreatmentStore
		group[i] = string(r.Group)
		value[i] = r.OrderValue
		logValue[i] = r.LogOrderValue
		treatment[i] = r.Treatment
		post[i] = r.PostOpen
		treatmentPost[i] = r.TreatmentPost
		quartile[i] = r.Quartile
		baseline[i] = r.BaselineOrderValue
		credit[i] = r.CreditScore
		density[i] = r.PopulationDensity
		for b := range buckets {
			buckets[b][i] = r.Buckets[b]
			bucketPost[b][i] = r.BucketPost[b]
		}
	}

	cols := []series.Series{
		series.New(postCode, series.String, ColPostCode),
		series.New(quarter, series.String, ColYearQuarter),
		series.New(store, series.String, ColTreatmentStore),
		series.New(group, series.String, ColGroup),
		series.New(value, series.Float, ColOrderValue),
		series.New(logValue, series.Float, "log_order_value"),
		series.New(treatment, series.Int, ColTreatment),
		series.New(post, series.Int, ColPost),
		series.New(treatmentPost, series.Int, "Treatment_Post"),
		series.New(quartile, series.Int, "order_value_quartile"),
		series.New(baseline, series.Float, ColBaselineOrderValue),
		series.New(credit, series.Float, ColCreditScore),
		series.New(density, series.Float, ColPopulationDensity),
	}
	for b, bucket := range analysis.DistanceBuckets {
		cols = append(cols,
			series.New(buckets[b], series.Int, bucket.Name()),
			series.New(bucketPost[b], series.Int, bucket.Name()+"_Post"),
		)
	}
	return dataframe.New(cols...)
}

// FromCohort builds the staggered-adoption export
func FromCohort(rows []analysis.CohortRow) dataframe.DataFrame {
	n := len(rows)
	logValue := make([]float64, n)
	value := make([]float64, n)
	countDate := make([]int, n)
	id := make([]int, n)
	cohort := make([]int, n)
	treatment := make([]int, n)
	credit := make([]float64, n)
	density := make([]float64, n)
	firstQ := make([]float64, n)
	for i, r := range rows {
		logValue[i] = r.LogOrderValue
		value[i] = r.OrderValue
		countDate[i] = r.CountDate
		id[i] = r.ID
		cohort[i] = r.CohortDate
		treatment[i] = r.Treatment
		credit[i] = r.CreditScore
		density[i] = r.PopulationDensity
		firstQ[i] = r.BaselineOrderValue
	}
	return dataframe.New(
		series.New(logValue, series.Float, "log_order_value"),
		series.New(value, series.Float, ColOrderValue),
		series.New(countDate, series.Int, "Count_date"),
		series.New(id, series.Int, "id"),
		series.New(cohort, series.Int, "cohort_date"),
		series.New(treatment, series.Int, ColTreatment),
		series.New(credit, series.Float, ColCreditScore),
		series.New(density, series.Float, ColPopulationDensity),
		series.New(firstQ, series.Float, "order_value_firstQ"),
	)
}

// FromSCM builds the synthetic-control panel with its measure columns in
// analysis.SCMColumns order
func FromSCM(rows []analysis.SCMRow) dataframe.DataFrame {
	n := len(rows)
	unit := make([]string, n)
	quarter := make([]string, n)
	since := make([]int, n)
	observed := make([]int, n)
	group := make([]string, n)
	treatment := make([]int, n)
	for i, r := range rows {
		unit[i] = r.Unit
		quarter[i] = r.YearQuarter.String()
		since[i] = r.QSinceOpen
		observed[i] = r.QSinceObservation
		group[i] = string(r.Group)
		treatment[i] = r.Treatment
	}
	cols := []series.Series{
		series.New(unit, series.String, ColPostCode),
		series.New(quarter, series.String, ColYearQuarter),
		series.New(since, series.Int, "q_since_open"),
		series.New(observed, series.Int, "q_since_observation"),
		series.New(group, series.String, ColGroup),
		series.New(treatment, series.Int, ColTreatment),
	}
	for _, c := range analysis.SCMColumns(rows) {
		values := make([]float64, n)
		for i, r := range rows {
			values[i] = r.Values[c]
		}
		cols = append(cols, series.New(values, series.Float, c))
	}
	return dataframe.New(cols...)
}

// FromAlternativeControl flattens the indexed series into one long table
func FromAlternativeControl(all []analysis.AltSeries) dataframe.DataFrame {
	var (
		split, quarter                                   []string
		since                                            []int
		value, rate, orders, valueIdx, rateIdx, orderIdx []float64
	)
	for _, s := range all {
		for _, p := range s.Points {
			split = append(split, string(s.Split))
			quarter = append(quarter, p.YearQuarter.String())
			since = append(since, p.QSinceOpen)
			value = append(value, p.OrderValue)
			rate = append(rate, p.ReturnRate)
			orders = append(orders, p.NumberOfOrders)
			valueIdx = append(valueIdx, p.OrderValueIndex)
			rateIdx = append(rateIdx, p.ReturnRateIndex)
			orderIdx = append(orderIdx, p.OrdersIndex)
		}
	}
	return dataframe.New(
		series.New(split, series.String, "split"),
		series.New(quarter, series.String, ColYearQuarter),
		series.New(since, series.Int, "q_since_open"),
		series.New(value, series.Float, ColOrderValue),
		series.New(rate, series.Float, "return_rate"),
		series.New(orders, series.Float, ColNumberOfOrders),
		series.New(valueIdx, series.Float, "order_value_index"),
		series.New(rateIdx, series.Float, "return_rate_index"),
		series.New(orderIdx, series.Float, "number_of_orders_index"),
	)
}
