package matching

import (
	"math"

	"omnichannel/pkg/contracts/domain"
)

// JoinConfig controls how covariates are attached to the panel
type JoinConfig struct {
	// Baseline is the quarter whose order value becomes the baseline covariate
	Baseline domain.Quarter
	// DropMissingGeo removes postal codes without a latitude
	DropMissingGeo bool
}

// JoinReport counts what the covariate join did
type JoinReport struct {
	Rows            int `json:"rows"`
	MissingSocio    int `json:"missing_socio"`
	MissingGeo      int `json:"missing_geo"`
	DroppedRows     int `json:"dropped_rows"`
	MissingBaseline int `json:"missing_baseline"`
}

// Attach returns a copy of panel with covariates filled in. Socio-economic
// values join by postal code and are NaN when absent; coordinates come from
// the geo records; the baseline value is the postal code's order value in
// cfg.Baseline, NaN when that quarter is not in the panel.
func Attach(panel []domain.PanelRow, socio []domain.SocioEconomic, geo []domain.GeoRecord, cfg JoinConfig) ([]domain.PanelRow, JoinReport) {
	socioIdx := make(map[string]domain.SocioEconomic, len(socio))
	for _, s := range socio {
		if _, ok := socioIdx[s.PostCode]; !ok {
			socioIdx[s.PostCode] = s
		}
	}
	geoIdx := make(map[string]domain.GeoRecord, len(geo))
	for _, g := range geo {
		if _, ok := geoIdx[g.PostCode]; !ok {
			geoIdx[g.PostCode] = g
		}
	}
	baseline := make(map[string]float64)
	for _, r := range panel {
		if r.YearQuarter == cfg.Baseline {
			baseline[r.PostCode] = r.OrderValue
		}
	}

	var report JoinReport
	missingSocio := make(map[string]bool)
	missingGeo := make(map[string]bool)
	missingBaseline := make(map[string]bool)

	out := make([]domain.PanelRow, 0, len(panel))
	for _, r := range panel {
		row := r.Clone()
		row.Covariates = domain.UnknownCovariates()

		if s, ok := socioIdx[r.PostCode]; ok {
			row.CreditScore = s.CreditScore
			row.PopulationDensity = s.PopulationDensity
		} else {
			missingSocio[r.PostCode] = true
		}
		if g, ok := geoIdx[r.PostCode]; ok {
			row.Latitude = g.Latitude
			row.Longitude = g.Longitude
		}
		if math.IsNaN(row.Latitude) {
			missingGeo[r.PostCode] = true
			if cfg.DropMissingGeo {
				report.DroppedRows++
				continue
			}
		}
		if v, ok := baseline[r.PostCode]; ok {
			row.BaselineOrderValue = v
		} else {
			missingBaseline[r.PostCode] = true
		}
		out = append(out, row)
	}

	report.Rows = len(out)
	report.MissingSocio = len(missingSocio)
	report.MissingGeo = len(missingGeo)
	report.MissingBaseline = len(missingBaseline)
	return out, report
}
