// Package geocode resolves postal codes to coordinates.
//
// Providers:
//
//	GoogleProvider  Google Maps Geocoding API
//	TableProvider   GeoNames postal code dump or a centroid CSV, fully offline
//
// A Resolver wraps any Provider with a Badger-backed cache, a token bucket
// limiter and singleflight so duplicate postal codes cost one call. Lookup
// failures never abort a batch: the postal code simply stays unresolved.
package geocode
