package enrich

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"omnichannel/pkg/contracts/domain"
)

// MeanEarthRadiusKm is the IUGG mean Earth radius
const MeanEarthRadiusKm = 6371.0088

// radiusScale converts orb's equatorial-radius haversine to the mean radius
var radiusScale = (MeanEarthRadiusKm * 1000) / orb.EarthRadius

// DistanceKm returns the haversine distance between two lat/lng pairs in
// kilometres, rounded to the nearest integer (ties to even).
// NaN inputs yield NaN.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	if math.IsNaN(lat1) || math.IsNaN(lng1) || math.IsNaN(lat2) || math.IsNaN(lng2) {
		return math.NaN()
	}
	meters := geo.DistanceHaversine(orb.Point{lng1, lat1}, orb.Point{lng2, lat2}) * radiusScale
	return math.RoundToEven(meters / 1000)
}

// StoreDistances computes the distance from a location to every store
func StoreDistances(lat, lng float64, stores *domain.StoreSet) map[string]float64 {
	out := make(map[string]float64, stores.Len())
	for _, s := range stores.All() {
		out[s.ID] = DistanceKm(s.Latitude, s.Longitude, lat, lng)
	}
	return out
}
