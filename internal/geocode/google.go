package geocode

import (
	"context"
	"fmt"
	"log/slog"

	"googlemaps.github.io/maps"

	"omnichannel/internal/infrastructure"
	"omnichannel/pkg/contracts/domain"
)

// ProviderGoogle is the name of the Google Maps provider
const ProviderGoogle = "google"

// mapsGeocoder is the part of *maps.Client the provider uses
type mapsGeocoder interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// GoogleProvider geocodes postal codes with the Google Maps Geocoding API
type GoogleProvider struct {
	client mapsGeocoder
	logger *slog.Logger
}

// NewGoogleProvider creates a provider authenticated with apiKey
func NewGoogleProvider(apiKey string, logger *slog.Logger) (*GoogleProvider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return newGoogleProvider(client, logger), nil
}

func newGoogleProvider(client mapsGeocoder, logger *slog.Logger) *GoogleProvider {
	return &GoogleProvider{
		client: client,
		logger: infrastructure.WithComponent(logger, "geocode.google"),
	}
}

// Name implements Provider
func (p *GoogleProvider) Name() string { return ProviderGoogle }

// Resolve queries "Postal Code <code> <Country>" restricted to the postal code
// and country components. Only the first result is used.
func (p *GoogleProvider) Resolve(ctx context.Context, country, postCode string) (Resolution, error) {
	countryName := domain.CountryName(country)

	results, err := p.client.Geocode(ctx, &maps.GeocodingRequest{
		Address: fmt.Sprintf("Postal Code %s %s", postCode, countryName),
		Components: map[maps.Component]string{
			maps.ComponentPostalCode: postCode,
			maps.ComponentCountry:    country,
		},
	})
	if err != nil {
		return Unresolved(countryName), fmt.Errorf("geocode %s %s: %w", country, postCode, err)
	}

	if len(results) == 0 {
		return Unresolved(countryName), nil
	}

	best := results[0]

	// A first component equal to the bare country code means the API fell
	// back to the whole country.
	if len(best.AddressComponents) > 0 && best.AddressComponents[0].ShortName == country {
		p.logger.DebugContext(ctx, "Ambiguous geocoding result",
			slog.String("country", country),
			slog.String("postal_code", postCode),
			slog.String("address", best.FormattedAddress))
		return Unresolved(best.FormattedAddress), nil
	}

	return Resolution{
		Latitude:  best.Geometry.Location.Lat,
		Longitude: best.Geometry.Location.Lng,
		Address:   best.FormattedAddress,
	}, nil
}
