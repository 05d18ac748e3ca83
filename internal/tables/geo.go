package tables

import (
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"omnichannel/pkg/contracts/domain"
)

// Geo table columns; per-store distances are written as DistanceColumn(id)
const (
	ColCountry    = "country"
	ColPostalCode = "postal_code"
	ColAddress    = "address"
	ColGeoSource  = "source"
)

// DistanceColumn names the distance column of a store
func DistanceColumn(storeID string) string {
	return "dist_" + storeID
}

// FromGeoRecords builds the geo table with one distance column per store,
// in store metadata order
func FromGeoRecords(records []domain.GeoRecord, stores *domain.StoreSet) dataframe.DataFrame {
	n := len(records)
	country := make([]string, n)
	postCode := make([]string, n)
	lat := make([]float64, n)
	lng := make([]float64, n)
	address := make([]string, n)
	source := make([]string, n)
	for i, g := range records {
		country[i] = g.Country
		postCode[i] = g.PostCode
		lat[i] = g.Latitude
		lng[i] = g.Longitude
		address[i] = g.Address
		source[i] = string(g.Source)
	}
	cols := []series.Series{
		series.New(country, series.String, ColCountry),
		series.New(postCode, series.String, ColPostalCode),
		series.New(lat, series.Float, ColLatitude),
		series.New(lng, series.Float, ColLongitude),
		series.New(address, series.String, ColAddress),
		series.New(source, series.String, ColGeoSource),
	}
	for _, id := range stores.IDs() {
		dist := make([]float64, n)
		for i, g := range records {
			if d, ok := g.Distance(id); ok {
				dist[i] = d
			} else {
				dist[i] = math.NaN()
			}
		}
		cols = append(cols, series.New(dist, series.Float, DistanceColumn(id)))
	}
	return dataframe.New(cols...)
}

// GeoRecords reads the geo table. Stores without a distance column get NaN.
func GeoRecords(df dataframe.DataFrame, stores *domain.StoreSet) ([]domain.GeoRecord, error) {
	r, err := newReader(df, "geo", ColCountry, ColPostalCode, ColLatitude, ColLongitude)
	if err != nil {
		return nil, err
	}
	lat, err := r.floats(ColLatitude)
	if err != nil {
		return nil, err
	}
	lng, err := r.floats(ColLongitude)
	if err != nil {
		return nil, err
	}
	ids := stores.IDs()
	dists := make(map[string][]float64, len(ids))
	for _, id := range ids {
		d, err := r.floats(DistanceColumn(id))
		if err != nil {
			return nil, err
		}
		dists[id] = d
	}
	country := r.strings(ColCountry)
	postCode := r.strings(ColPostalCode)
	address := r.strings(ColAddress)
	source := r.strings(ColGeoSource)

	out := make([]domain.GeoRecord, r.rows())
	for i := range out {
		rec := domain.GeoRecord{
			Country:   country[i],
			PostCode:  postCode[i],
			Latitude:  lat[i],
			Longitude: lng[i],
			Address:   address[i],
			Source:    domain.GeoSource(source[i]),
			Distances: make(map[string]float64, len(ids)),
		}
		if rec.Source == "" {
			rec.Source = domain.GeoSourceNone
		}
		for _, id := range ids {
			rec.Distances[id] = dists[id][i]
		}
		out[i] = rec
	}
	return out, nil
}
