package tables

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gota/gota/dataframe"

	apperrors "omnichannel/internal/errors"
	"omnichannel/pkg/contracts/domain"
)

// Store metadata and covariate columns
const (
	ColCity              = "city"
	ColStoreOpeningDate  = "opening_date"
	ColLatitude          = "latitude"
	ColLongitude         = "longitude"
	ColCreditScore       = "credit_score"
	ColPopulationDensity = "population_density_per_sqkm"
)

// Stores reads the store metadata table. Row order is kept; it decides
// ties between equidistant stores.
func Stores(df dataframe.DataFrame) (*domain.StoreSet, error) {
	r, err := newReader(df, "stores", ColCity, ColStoreOpeningDate)
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
	city := r.strings(ColCity)
	opened := r.strings(ColStoreOpeningDate)

	stores := make([]domain.Store, r.rows())
	for i := range stores {
		t, err := domain.ParseStoreDate(opened[i])
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("stores row %d", i), err)
		}
		if math.IsNaN(lat[i]) || math.IsNaN(lng[i]) {
			return nil, apperrors.NewParsingError(fmt.Sprintf("store %s has no coordinates", city[i]), nil)
		}
		stores[i] = domain.Store{
			ID:          strings.TrimSpace(city[i]),
			OpeningDate: t,
			Latitude:    lat[i],
			Longitude:   lng[i],
		}
	}

	set, err := domain.NewStoreSet(stores)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid store metadata", err)
	}
	return set, nil
}

// SocioEconomic reads the per-postal-code covariate table
func SocioEconomic(df dataframe.DataFrame) ([]domain.SocioEconomic, error) {
	r, err := newReader(df, "socio-economic", ColPostCode, ColCreditScore, ColPopulationDensity)
	if err != nil {
		return nil, err
	}
	credit, err := r.floats(ColCreditScore)
	if err != nil {
		return nil, err
	}
	density, err := r.floats(ColPopulationDensity)
	if err != nil {
		return nil, err
	}
	postCode := r.strings(ColPostCode)

	out := make([]domain.SocioEconomic, r.rows())
	for i := range out {
		out[i] = domain.SocioEconomic{
			PostCode:          strings.TrimSpace(postCode[i]),
			CreditScore:       credit[i],
			PopulationDensity: density[i],
		}
	}
	return out, nil
}
