package geocode

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"omnichannel/internal/infrastructure"
	"omnichannel/pkg/contracts/domain"
)

// Names of the offline providers
const (
	ProviderGeoNames  = "geonames"
	ProviderCentroids = "centroids"
)

// tableEntry accumulates coordinates of duplicate postal code rows
type tableEntry struct {
	latSum, lngSum float64
	n              int
	place          string
}

// TableProvider resolves postal codes from an in-memory lookup table
type TableProvider struct {
	name    string
	entries map[domain.GeoKey]*tableEntry
}

// Name implements Provider
func (p *TableProvider) Name() string { return p.name }

// Len returns the number of distinct postal codes in the table
func (p *TableProvider) Len() int { return len(p.entries) }

// Resolve implements Provider. Postal codes listed several times resolve
// to the mean of their coordinates.
func (p *TableProvider) Resolve(_ context.Context, country, postCode string) (Resolution, error) {
	e, ok := p.entries[domain.GeoKey{Country: country, PostCode: postCode}]
	if !ok || e.n == 0 {
		return Unresolved(domain.CountryName(country)), nil
	}

	address := domain.CountryName(country)
	if e.place != "" {
		address = e.place + ", " + address
	}

	return Resolution{
		Latitude:  e.latSum / float64(e.n),
		Longitude: e.lngSum / float64(e.n),
		Address:   address,
	}, nil
}

func (p *TableProvider) add(country, postCode, place string, lat, lng float64) {
	key := domain.GeoKey{Country: strings.ToUpper(country), PostCode: postCode}
	e, ok := p.entries[key]
	if !ok {
		e = &tableEntry{place: place}
		p.entries[key] = e
	}
	e.latSum += lat
	e.lngSum += lng
	e.n++
}

// LoadGeoNames reads a GeoNames postal code dump (tab separated, no header:
// country, postal code, place, admin fields..., latitude, longitude, accuracy).
func LoadGeoNames(path string, logger *slog.Logger) (*TableProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geonames file: %w", err)
	}
	defer f.Close()

	p, skipped, err := readGeoNames(f)
	if err != nil {
		return nil, fmt.Errorf("read geonames file %s: %w", path, err)
	}

	infrastructure.WithComponent(logger, "geocode.table").Info("GeoNames table loaded",
		slog.String("path", path),
		slog.Int("postal_codes", p.Len()),
		slog.Int("skipped_rows", skipped))

	return p, nil
}

func readGeoNames(r io.Reader) (*TableProvider, int, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	p := &TableProvider{name: ProviderGeoNames, entries: make(map[domain.GeoKey]*tableEntry)}
	skipped := 0

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		if len(record) < 11 {
			skipped++
			continue
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(record[9]), 64)
		lng, errLng := strconv.ParseFloat(strings.TrimSpace(record[10]), 64)
		if errLat != nil || errLng != nil {
			skipped++
			continue
		}
		p.add(record[0], strings.TrimSpace(record[1]), strings.TrimSpace(record[2]), lat, lng)
	}

	return p, skipped, nil
}

// LoadCentroids reads a CSV with header country,postal_code,latitude,longitude
func LoadCentroids(path string, logger *slog.Logger) (*TableProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open centroid file: %w", err)
	}
	defer f.Close()

	p, err := readCentroids(f)
	if err != nil {
		return nil, fmt.Errorf("read centroid file %s: %w", path, err)
	}

	infrastructure.WithComponent(logger, "geocode.table").Info("Centroid table loaded",
		slog.String("path", path),
		slog.Int("postal_codes", p.Len()))

	return p, nil
}

func readCentroids(r io.Reader) (*TableProvider, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty centroid file")
	}

	cols := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"country", "postal_code", "latitude", "longitude"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("centroid file missing column %s", required)
		}
	}

	p := &TableProvider{name: ProviderCentroids, entries: make(map[domain.GeoKey]*tableEntry)}
	for i, record := range records[1:] {
		lat, err := strconv.ParseFloat(strings.TrimSpace(record[cols["latitude"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d latitude: %w", i+2, err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(record[cols["longitude"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d longitude: %w", i+2, err)
		}
		p.add(record[cols["country"]], strings.TrimSpace(record[cols["postal_code"]]), "", lat, lng)
	}

	return p, nil
}
