package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"

	apperrors "omnichannel/internal/errors"
)

// Series is one unit's outcome ordered by quarters since opening
type Series struct {
	Unit    string
	Periods []int
	Values  []float64
}

// FitProblem is the input of a synthetic-control fit. All series share the
// same periods; periods <= 0 are the pre-treatment fit window.
type FitProblem struct {
	Treated Series
	Donors  []Series
	Periods []int
}

// Solver finds non-negative donor weights that reproduce the treated unit
// before treatment. Implementations live outside this module.
type Solver interface {
	Fit(ctx context.Context, problem FitProblem) (map[string]float64, error)
}

// SolverFunc adapts a function to the Solver interface
type SolverFunc func(ctx context.Context, problem FitProblem) (map[string]float64, error)

// Fit implements Solver
func (f SolverFunc) Fit(ctx context.Context, problem FitProblem) (map[string]float64, error) {
	return f(ctx, problem)
}

// SCMResult is a fitted synthetic control for one unit
type SCMResult struct {
	Unit      string             `json:"unit"`
	Periods   []int              `json:"periods"`
	Treated   []float64          `json:"treated"`
	Synthetic []float64          `json:"synthetic"`
	Weights   map[string]float64 `json:"weights"`
}

// BuildProblem extracts the outcome series of the treated unit and all
// donors over the periods the treated unit is observed. Donors missing a
// period are left out.
func BuildProblem(rows []SCMRow, outcome, treatedUnit string) (FitProblem, error) {
	byUnit := make(map[string]map[int]float64)
	var units []string
	for _, r := range rows {
		v, ok := r.Values[outcome]
		if !ok {
			return FitProblem{}, apperrors.NewConfigError(fmt.Sprintf("outcome column %q not in panel", outcome), nil)
		}
		m, ok := byUnit[r.Unit]
		if !ok {
			m = make(map[int]float64)
			byUnit[r.Unit] = m
			units = append(units, r.Unit)
		}
		m[r.QSinceOpen] = v
	}

	treated, ok := byUnit[treatedUnit]
	if !ok {
		return FitProblem{}, apperrors.NewConfigError(fmt.Sprintf("treated unit %q not in panel", treatedUnit), nil)
	}
	periods := make([]int, 0, len(treated))
	for p := range treated {
		periods = append(periods, p)
	}
	sort.Ints(periods)

	series := func(unit string, values map[int]float64) (Series, bool) {
		s := Series{Unit: unit, Periods: periods, Values: make([]float64, len(periods))}
		for i, p := range periods {
			v, ok := values[p]
			if !ok || math.IsNaN(v) {
				return Series{}, false
			}
			s.Values[i] = v
		}
		return s, true
	}

	problem := FitProblem{Periods: periods}
	problem.Treated, ok = series(treatedUnit, treated)
	if !ok {
		return FitProblem{}, apperrors.NewAppValidationError(fmt.Sprintf("treated unit %q has missing outcome values", treatedUnit))
	}
	sort.Strings(units)
	for _, u := range units {
		if u == treatedUnit {
			continue
		}
		if s, ok := series(u, byUnit[u]); ok {
			problem.Donors = append(problem.Donors, s)
		}
	}
	if len(problem.Donors) == 0 {
		return FitProblem{}, apperrors.NewAppValidationError("no donor unit covers the treated unit's periods")
	}
	return problem, nil
}

// Synthesize combines donor series with weights
func Synthesize(problem FitProblem, weights map[string]float64) SCMResult {
	synth := make([]float64, len(problem.Periods))
	for _, d := range problem.Donors {
		w := weights[d.Unit]
		if w == 0 {
			continue
		}
		for i, v := range d.Values {
			synth[i] += w * v
		}
	}
	return SCMResult{
		Unit:      problem.Treated.Unit,
		Periods:   problem.Periods,
		Treated:   problem.Treated.Values,
		Synthetic: synth,
		Weights:   weights,
	}
}

// Fit builds the problem for treatedUnit, asks the solver for weights and
// returns the fitted synthetic control
func Fit(ctx context.Context, solver Solver, rows []SCMRow, outcome, treatedUnit string) (SCMResult, error) {
	problem, err := BuildProblem(rows, outcome, treatedUnit)
	if err != nil {
		return SCMResult{}, err
	}
	weights, err := solver.Fit(ctx, problem)
	if err != nil {
		return SCMResult{}, fmt.Errorf("fit synthetic control for %s: %w", treatedUnit, err)
	}
	return Synthesize(problem, weights), nil
}

// Placebos refits every donor as if it were treated, using the remaining
// donors. The real treated unit never serves as a donor.
func Placebos(ctx context.Context, solver Solver, rows []SCMRow, outcome, treatedUnit string) ([]SCMResult, error) {
	donorRows := make([]SCMRow, 0, len(rows))
	units := make(map[string]bool)
	for _, r := range rows {
		if r.Unit == treatedUnit {
			continue
		}
		donorRows = append(donorRows, r)
		units[r.Unit] = true
	}
	names := make([]string, 0, len(units))
	for u := range units {
		names = append(names, u)
	}
	sort.Strings(names)

	out := make([]SCMResult, 0, len(names))
	for _, u := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := Fit(ctx, solver, donorRows, outcome, u)
		if err != nil {
			if apperrors.TypeOf(err) == apperrors.ErrTypeValidation {
				continue
			}
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// PointEffect is the gap between treated and synthetic in one period
type PointEffect struct {
	Period     int     `json:"period"`
	Treated    float64 `json:"treated"`
	Synthetic  float64 `json:"synthetic"`
	Effect     float64 `json:"effect"`
	Cumulative float64 `json:"cumulative"`
}

// UnitFit summarizes the fit quality of one unit
type UnitFit struct {
	Unit      string  `json:"unit"`
	PreRMSPE  float64 `json:"pre_rmspe"`
	PostRMSPE float64 `json:"post_rmspe"`
	Ratio     float64 `json:"ratio"`
}

// SCMReport holds the effect estimates of a synthetic-control fit
type SCMReport struct {
	Fit      UnitFit       `json:"fit"`
	Effects  []PointEffect `json:"effects"`
	Placebos []UnitFit     `json:"placebos"`
	// Rank is the treated unit's position when all units are ordered by
	// descending post/pre RMSPE ratio, starting at 1
	Rank   int     `json:"rank"`
	PValue float64 `json:"p_value"`
}

func fitOf(res SCMResult) UnitFit {
	var preT, preS, postT, postS []float64
	for i, p := range res.Periods {
		if p > 0 {
			postT = append(postT, res.Treated[i])
			postS = append(postS, res.Synthetic[i])
		} else {
			preT = append(preT, res.Treated[i])
			preS = append(preS, res.Synthetic[i])
		}
	}
	fit := UnitFit{Unit: res.Unit, PreRMSPE: rmspe(preT, preS), PostRMSPE: rmspe(postT, postS)}
	fit.Ratio = fit.PostRMSPE / fit.PreRMSPE
	return fit
}

// Report computes pointwise and cumulative effects, the fit quality and the
// placebo ranking. Cumulative effects accumulate over post periods only.
func Report(result SCMResult, placebos []SCMResult) SCMReport {
	report := SCMReport{Fit: fitOf(result)}

	cumulative := 0.0
	for i, p := range result.Periods {
		e := PointEffect{
			Period:    p,
			Treated:   result.Treated[i],
			Synthetic: result.Synthetic[i],
			Effect:    result.Treated[i] - result.Synthetic[i],
		}
		if p > 0 {
			cumulative += e.Effect
			e.Cumulative = cumulative
		}
		report.Effects = append(report.Effects, e)
	}

	report.Rank = 1
	for _, pl := range placebos {
		fit := fitOf(pl)
		report.Placebos = append(report.Placebos, fit)
		if fit.Ratio > report.Fit.Ratio {
			report.Rank++
		}
	}
	sort.SliceStable(report.Placebos, func(i, j int) bool { return report.Placebos[i].Ratio > report.Placebos[j].Ratio })
	report.PValue = float64(report.Rank) / float64(len(placebos)+1)
	return report
}
