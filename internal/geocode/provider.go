package geocode

import (
	"context"
	"math"

	"omnichannel/pkg/contracts/domain"
)

// Resolution is the outcome of geocoding one postal code.
// Unresolved lookups carry NaN coordinates and a placeholder address.
type Resolution struct {
	Latitude  float64
	Longitude float64
	Address   string
}

// HasCoordinates reports whether both coordinates are known
func (r Resolution) HasCoordinates() bool {
	return !math.IsNaN(r.Latitude) && !math.IsNaN(r.Longitude)
}

// Unresolved returns a resolution without coordinates
func Unresolved(address string) Resolution {
	return Resolution{Latitude: math.NaN(), Longitude: math.NaN(), Address: address}
}

// Provider resolves a postal code to coordinates and a formatted address.
// A provider returns an error only for transport or quota failures;
// "not found" is an unresolved Resolution with a nil error.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, country, postCode string) (Resolution, error)
}

// Key returns the cache key of a lookup
func Key(provider string, k domain.GeoKey) string {
	return provider + "|" + k.Country + "|" + k.PostCode
}
