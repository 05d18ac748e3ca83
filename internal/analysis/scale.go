package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	apperrors "omnichannel/internal/errors"
)

// ScaleMethod names a column normalisation
type ScaleMethod string

const (
	ScaleMinMax     ScaleMethod = "minmax"
	ScaleMeanNormal ScaleMethod = "meannormal"
	ScaleStandard   ScaleMethod = "standard"
)

// ScaleSpec describes how one column is scaled
type ScaleSpec struct {
	Column    string
	Method    ScaleMethod
	Winsorize bool
	// Lower and Upper are the fractions clipped at each tail
	Lower float64
	Upper float64
}

// Winsorize clips the lowest lower and highest upper fractions of values to
// the nearest remaining value. NaN entries are left alone.
func Winsorize(values []float64, lower, upper float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)

	sorted := []float64(finite(values))
	n := len(sorted)
	if n == 0 {
		return out
	}
	sort.Float64s(sorted)

	lowIdx := int(lower * float64(n))
	upIdx := n - int(math.RoundToEven(upper*float64(n)))
	if lowIdx >= n {
		lowIdx = n - 1
	}
	if upIdx < 1 {
		upIdx = 1
	}
	lo, hi := sorted[lowIdx], sorted[upIdx-1]

	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		if lower > 0 && v < lo {
			out[i] = lo
		}
		if upper > 0 && v > hi {
			out[i] = hi
		}
	}
	return out
}

// scaleValues applies method to values. A constant column scales to 0.
func scaleValues(values []float64, method ScaleMethod) ([]float64, error) {
	data := finite(values)
	out := make([]float64, len(values))
	if len(data) == 0 {
		copy(out, values)
		return out, nil
	}

	lowest, _ := stats.Min(data)
	highest, _ := stats.Max(data)
	mean, _ := stats.Mean(data)
	spread := highest - lowest

	var center, denom float64
	switch method {
	case ScaleMinMax:
		center, denom = lowest, spread
	case ScaleMeanNormal:
		center, denom = mean, spread
	case ScaleStandard:
		sd, err := stats.StandardDeviationSample(data)
		if err != nil {
			sd = 0
		}
		center, denom = mean, sd
	default:
		return nil, apperrors.NewConfigError(fmt.Sprintf("unknown scale method %q", method), nil)
	}

	for i, v := range values {
		switch {
		case math.IsNaN(v):
			out[i] = v
		case denom == 0 || math.IsNaN(denom):
			out[i] = 0
		default:
			out[i] = (v - center) / denom
		}
	}
	return out, nil
}

// Scale normalises columns of the synthetic-control panel in place.
// An empty spec list leaves the rows untouched.
func Scale(rows []SCMRow, specs []ScaleSpec) error {
	for _, spec := range specs {
		values := make([]float64, len(rows))
		for i, r := range rows {
			v, ok := r.Values[spec.Column]
			if !ok {
				return apperrors.NewConfigError(fmt.Sprintf("cannot scale missing column %q", spec.Column), nil)
			}
			values[i] = v
		}
		if spec.Winsorize {
			values = Winsorize(values, spec.Lower, spec.Upper)
		}
		scaled, err := scaleValues(values, spec.Method)
		if err != nil {
			return fmt.Errorf("scale %s: %w", spec.Column, err)
		}
		for i := range rows {
			rows[i].Values[spec.Column] = scaled[i]
		}
	}
	return nil
}

// ScaleSpecs builds one spec per column with the same method and limits
func ScaleSpecs(columns []string, method ScaleMethod, winsorize bool, lower, upper float64) []ScaleSpec {
	if method == "" {
		return nil
	}
	specs := make([]ScaleSpec, 0, len(columns))
	for _, c := range columns {
		specs = append(specs, ScaleSpec{Column: c, Method: method, Winsorize: winsorize, Lower: lower, Upper: upper})
	}
	return specs
}
