package domain

import "math"

// GeoKey identifies a postal code within a country
type GeoKey struct {
	Country  string `json:"country"`
	PostCode string `json:"postal_code"`
}

// GeoSource records which geocoding source produced the coordinates
type GeoSource string

const (
	GeoSourcePrimary   GeoSource = "primary"
	GeoSourceSecondary GeoSource = "secondary"
	GeoSourceTertiary  GeoSource = "tertiary"
	GeoSourceNone      GeoSource = "none"
)

// GeoRecord holds the resolved location of one postal code and its
// rounded distance in kilometres to every store.
// Unknown coordinates and distances are NaN.
type GeoRecord struct {
	Country   string             `json:"country"`
	PostCode  string             `json:"postal_code"`
	Latitude  float64            `json:"latitude"`
	Longitude float64            `json:"longitude"`
	Address   string             `json:"address"`
	Source    GeoSource          `json:"source"`
	Distances map[string]float64 `json:"distances"`
}

// Key returns the join key of the record
func (g GeoRecord) Key() GeoKey {
	return GeoKey{Country: g.Country, PostCode: g.PostCode}
}

// HasCoordinates reports whether both coordinates are known
func (g GeoRecord) HasCoordinates() bool {
	return !math.IsNaN(g.Latitude) && !math.IsNaN(g.Longitude)
}

// Distance returns the distance to a store, false when unknown
func (g GeoRecord) Distance(storeID string) (float64, bool) {
	d, ok := g.Distances[storeID]
	if !ok || math.IsNaN(d) {
		return 0, false
	}
	return d, true
}
