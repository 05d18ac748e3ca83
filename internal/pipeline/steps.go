package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/go-gota/gota/dataframe"

	"omnichannel/internal/aggregation"
	"omnichannel/internal/analysis"
	"omnichannel/internal/cleaning"
	"omnichannel/internal/config"
	"omnichannel/internal/enrich"
	apperrors "omnichannel/internal/errors"
	"omnichannel/internal/infrastructure"
	"omnichannel/internal/matching"
	"omnichannel/internal/storage"
	"omnichannel/internal/tables"
	"omnichannel/internal/treatment"
	"omnichannel/pkg/contracts/domain"
)

// Step IDs in execution order
const (
	StepClean      = "clean"
	StepEnrich     = "enrich"
	StepTreat      = "treat"
	StepAggregate  = "aggregate"
	StepMatch      = "match"
	StepDiD        = "did"
	StepSCM        = "scm"
	StepAltControl = "altcontrol"
)

// Deps are the collaborators shared by the steps
type Deps struct {
	Config *config.Config
	Store  storage.Store
	// Geocoders are the enrichment sources in priority order
	Geocoders []enrich.BatchResolver
	// Solver fits synthetic controls; without one the scm step only
	// prepares and saves the panel
	Solver analysis.Solver
	// Metrics may be nil
	Metrics *infrastructure.PipelineMetrics
	Logger  *slog.Logger
}

// Build registers every step in execution order
func Build(deps Deps) (*Registry, error) {
	if deps.Config == nil || deps.Store == nil {
		return nil, apperrors.NewConfigError("pipeline needs a configuration and a store", nil)
	}
	overrides, err := storage.ParseOverrides(deps.Config.Storage.SchemaOverrides)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &env{Deps: deps, overrides: overrides, logger: infrastructure.WithComponent(logger, "steps")}

	reg := NewRegistry()
	for _, s := range []Step{
		&cleanStep{NewBaseStep(StepClean, "Clean orders"), e},
		&enrichStep{NewBaseStep(StepEnrich, "Geo-enrich postal codes"), e},
		&treatStep{NewBaseStep(StepTreat, "Assign treatment"), e},
		&aggregateStep{NewBaseStep(StepAggregate, "Aggregate quarterly panel"), e},
		&matchStep{NewBaseStep(StepMatch, "Select window and match controls"), e},
		&didStep{NewBaseStep(StepDiD, "Prepare difference-in-differences"), e},
		&scmStep{NewBaseStep(StepSCM, "Prepare synthetic control"), e},
		&altControlStep{NewBaseStep(StepAltControl, "Prepare alternative control"), e},
	} {
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// env loads missing inputs from storage and saves outputs
type env struct {
	Deps
	overrides storage.Overrides
	logger    *slog.Logger
}

func (e *env) names() config.TablesConfig { return e.Config.Storage.Tables }

func (e *env) pipeline() config.PipelineConfig { return e.Config.Pipeline }

func (e *env) area() (string, error) {
	area, err := e.Config.RequireArea()
	if err != nil {
		return "", apperrors.NewConfigError("no area selected", err)
	}
	return area, nil
}

func (e *env) save(ctx context.Context, df dataframe.DataFrame, name string) error {
	if err := e.Store.Save(ctx, df, name, e.overrides.For(df)); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	e.Metrics.RecordStorage(ctx, "save", name, df.Nrow())
	return nil
}

func (e *env) load(ctx context.Context, name string) (dataframe.DataFrame, error) {
	df, err := e.Store.Load(ctx, name)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("load %s: %w", name, err)
	}
	e.Metrics.RecordStorage(ctx, "load", name, df.Nrow())
	return df, nil
}

func (e *env) stores(ctx context.Context, a *Artifacts) (*domain.StoreSet, error) {
	if a.Stores != nil {
		return a.Stores, nil
	}
	df, err := e.load(ctx, e.names().Stores)
	if err != nil {
		return nil, err
	}
	set, err := tables.Stores(df)
	if err != nil {
		return nil, fmt.Errorf("read store metadata: %w", err)
	}
	a.Stores = set
	return set, nil
}

func (e *env) orders(ctx context.Context, a *Artifacts) ([]domain.Order, error) {
	if a.Orders != nil {
		return a.Orders, nil
	}
	df, err := e.load(ctx, e.names().Cleaned)
	if err != nil {
		return nil, err
	}
	orders, err := tables.Orders(df)
	if err != nil {
		return nil, fmt.Errorf("read cleaned orders: %w", err)
	}
	a.Orders = orders
	return orders, nil
}

func (e *env) geo(ctx context.Context, a *Artifacts) ([]domain.GeoRecord, error) {
	if a.Geo != nil {
		return a.Geo, nil
	}
	stores, err := e.stores(ctx, a)
	if err != nil {
		return nil, err
	}
	df, err := e.load(ctx, e.names().Geo)
	if err != nil {
		return nil, err
	}
	geo, err := tables.GeoRecords(df, stores)
	if err != nil {
		return nil, fmt.Errorf("read geo records: %w", err)
	}
	a.Geo = geo
	return geo, nil
}

func (e *env) annotated(ctx context.Context, a *Artifacts) ([]domain.AnnotatedOrder, error) {
	if a.Annotated != nil {
		return a.Annotated, nil
	}
	df, err := e.load(ctx, e.names().Annotated)
	if err != nil {
		return nil, err
	}
	orders, err := tables.AnnotatedOrders(df)
	if err != nil {
		return nil, fmt.Errorf("read annotated orders: %w", err)
	}
	a.Annotated = orders
	return orders, nil
}

func (e *env) panel(ctx context.Context, a *Artifacts) ([]domain.PanelRow, error) {
	if a.Panel != nil {
		return a.Panel, nil
	}
	df, err := e.load(ctx, e.names().Panel)
	if err != nil {
		return nil, err
	}
	panel, err := tables.Panel(df)
	if err != nil {
		return nil, fmt.Errorf("read panel: %w", err)
	}
	a.Panel = panel
	return panel, nil
}

// joined attaches covariates to the panel
func (e *env) joined(ctx context.Context, a *Artifacts) ([]domain.PanelRow, error) {
	if a.Joined != nil {
		return a.Joined, nil
	}
	panel, err := e.panel(ctx, a)
	if err != nil {
		return nil, err
	}
	geo, err := e.geo(ctx, a)
	if err != nil {
		return nil, err
	}
	df, err := e.load(ctx, e.names().Covariates)
	if err != nil {
		return nil, err
	}
	socio, err := tables.SocioEconomic(df)
	if err != nil {
		return nil, fmt.Errorf("read covariates: %w", err)
	}

	joined, report := matching.Attach(panel, socio, geo, matching.JoinConfig{
		Baseline:       e.pipeline().Baseline(),
		DropMissingGeo: e.pipeline().DropMissingGeo,
	})
	e.logger.InfoContext(ctx, "covariates attached",
		slog.Int("rows", report.Rows),
		slog.Int("missing_socio", report.MissingSocio),
		slog.Int("missing_geo", report.MissingGeo),
		slog.Int("missing_baseline", report.MissingBaseline),
		slog.Int("dropped_rows", report.DroppedRows))
	a.Joined = joined
	return joined, nil
}

// matchArea windows the joined panel around one area and appends matched controls
func (e *env) matchArea(ctx context.Context, a *Artifacts, area string) ([]domain.PanelRow, []domain.Match, matching.Report, error) {
	stores, err := e.stores(ctx, a)
	if err != nil {
		return nil, nil, matching.Report{}, err
	}
	joined, err := e.joined(ctx, a)
	if err != nil {
		return nil, nil, matching.Report{}, err
	}
	window, err := matching.NewWindow(area, e.pipeline().QuartersBefore, e.pipeline().QuartersAfter, stores)
	if err != nil {
		return nil, nil, matching.Report{}, err
	}
	matcher, err := matching.NewMatcher(e.pipeline().Neighbours, e.logger)
	if err != nil {
		return nil, nil, matching.Report{}, err
	}
	return matcher.Match(ctx, window.Select(joined))
}

func (e *env) matched(ctx context.Context, a *Artifacts) ([]domain.PanelRow, error) {
	if a.Matched != nil {
		return a.Matched, nil
	}
	df, err := e.load(ctx, e.names().Matched)
	if err != nil {
		return nil, err
	}
	panel, err := tables.Panel(df)
	if err != nil {
		return nil, fmt.Errorf("read matched panel: %w", err)
	}
	a.Matched = panel
	return panel, nil
}

type cleanStep struct {
	BaseStep
	*env
}

func (s *cleanStep) Execute(ctx context.Context, state *RunState) error {
	df, err := s.load(ctx, s.names().Orders)
	if err != nil {
		return err
	}
	raws, err := tables.RawOrders(df)
	if err != nil {
		return fmt.Errorf("read raw orders: %w", err)
	}

	orders, report := cleaning.NewCleaner(s.logger).Clean(ctx, raws)
	state.Step(s.ID()).SetRows(report.Input, report.Output, report.DroppedByReason())
	state.Data.Orders = orders

	return s.save(ctx, tables.FromOrders(orders), s.names().Cleaned)
}

type enrichStep struct {
	BaseStep
	*env
}

func (s *enrichStep) Validate(*RunState) error {
	if len(s.Geocoders) == 0 {
		return apperrors.NewConfigError("no geocoding provider configured", nil)
	}
	return nil
}

func (s *enrichStep) Execute(ctx context.Context, state *RunState) error {
	stores, err := s.stores(ctx, state.Data)
	if err != nil {
		return err
	}
	orders, err := s.orders(ctx, state.Data)
	if err != nil {
		return err
	}

	enricher, err := enrich.NewEnricher(stores, s.logger, s.Geocoders...)
	if err != nil {
		return apperrors.NewConfigError("create enricher", err)
	}
	geo, report, err := enricher.Enrich(ctx, orders)
	if err != nil {
		return err
	}

	st := state.Step(s.ID())
	st.SetRows(len(orders), len(geo), nil)
	st.SetMessage(fmt.Sprintf("%d postal codes, %d unresolved", report.PostCodes, report.Unresolved))
	state.Data.Geo = geo

	return s.save(ctx, tables.FromGeoRecords(geo, stores), s.names().Geo)
}

type treatStep struct {
	BaseStep
	*env
}

func (s *treatStep) Execute(ctx context.Context, state *RunState) error {
	stores, err := s.stores(ctx, state.Data)
	if err != nil {
		return err
	}
	orders, err := s.orders(ctx, state.Data)
	if err != nil {
		return err
	}
	geo, err := s.geo(ctx, state.Data)
	if err != nil {
		return err
	}

	p := s.pipeline()
	policy, err := treatment.NewPolicy(treatment.Config{
		TreatDistanceKm:  p.TreatDistanceKm,
		Countries:        p.Countries,
		EarlyStoreCutoff: p.EarlyStoreDate(),
		IgnoredStores:    p.IgnoredStores,
	}, stores)
	if err != nil {
		return err
	}

	annotated, report, err := treatment.NewAssigner(policy, s.logger).AssignAll(ctx, orders, enrich.Index(geo))
	if err != nil {
		return err
	}
	state.Step(s.ID()).SetRows(report.Input, report.Output, report.DroppedByReason())
	state.Data.Annotated = annotated

	return s.save(ctx, tables.FromAnnotatedOrders(annotated), s.names().Annotated)
}

type aggregateStep struct {
	BaseStep
	*env
}

func (s *aggregateStep) Execute(ctx context.Context, state *RunState) error {
	stores, err := s.stores(ctx, state.Data)
	if err != nil {
		return err
	}
	orders, err := s.annotated(ctx, state.Data)
	if err != nil {
		return err
	}

	agg, err := aggregation.NewAggregator(aggregation.Config{ExcludedStores: s.pipeline().ExcludedStores}, stores, s.logger)
	if err != nil {
		return err
	}
	panel, report, err := agg.Aggregate(ctx, orders)
	if err != nil {
		return err
	}
	if err := aggregation.CheckBalanced(panel); err != nil {
		return err
	}

	var dropped map[string]int
	if report.Excluded > 0 {
		dropped = map[string]int{"excluded_store": report.Excluded}
	}
	st := state.Step(s.ID())
	st.SetRows(report.Input, report.Rows, dropped)
	st.SetMessage(fmt.Sprintf("%d postal codes x %d quarters, %d filled", report.PostCodes, report.Quarters, report.FilledRows))
	state.Data.Panel = panel
	state.Data.Joined = nil

	return s.save(ctx, tables.FromPanel(panel, stores, false), s.names().Panel)
}

type matchStep struct {
	BaseStep
	*env
}

func (s *matchStep) Validate(*RunState) error {
	_, err := s.area()
	return err
}

func (s *matchStep) Execute(ctx context.Context, state *RunState) error {
	area, err := s.area()
	if err != nil {
		return err
	}
	out, matches, report, err := s.matchArea(ctx, state.Data, area)
	if err != nil {
		return err
	}

	st := state.Step(s.ID())
	st.SetRows(len(state.Data.Joined), len(out), nil)
	st.SetMessage(fmt.Sprintf("%d treated, %d controls, %d matches", report.Treated, report.Controls, len(matches)))
	state.Data.Matched = out
	state.Data.Matches = matches

	if err := s.save(ctx, tables.FromPanel(out, state.Data.Stores, true), s.names().Matched); err != nil {
		return err
	}
	if s.names().Matches == "" {
		return nil
	}
	return s.save(ctx, tables.FromMatches(matches), s.names().Matches)
}

type didStep struct {
	BaseStep
	*env
}

func (s *didStep) Validate(*RunState) error {
	_, err := s.area()
	return err
}

func (s *didStep) Execute(ctx context.Context, state *RunState) error {
	area, err := s.area()
	if err != nil {
		return err
	}
	matched, err := s.matched(ctx, state.Data)
	if err != nil {
		return err
	}

	joined, err := s.joined(ctx, state.Data)
	if err != nil {
		return err
	}
	quartiles, err := analysis.BaselineQuartiles(joined, s.pipeline().Baseline())
	if err != nil {
		return err
	}
	features := analysis.Features(matched, quartiles)
	frame, err := analysis.RegressionFrame(features, area)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "baseline quartiles",
		slog.Float64("q25", quartiles.Q25),
		slog.Float64("q50", quartiles.Q50),
		slog.Float64("q75", quartiles.Q75))

	state.Step(s.ID()).SetRows(len(matched), len(frame), nil)
	if err := s.save(ctx, tables.FromRegressionFrame(frame), s.names().DiD); err != nil {
		return err
	}

	areas := s.pipeline().CohortAreas
	if len(areas) == 0 {
		return nil
	}
	var stacked []domain.PanelRow
	for _, a := range areas {
		out, _, _, err := s.matchArea(ctx, state.Data, a)
		if err != nil {
			return fmt.Errorf("match cohort area %s: %w", a, err)
		}
		stacked = append(stacked, out...)
	}
	anchor := s.pipeline().AnchorArea
	if anchor == "" {
		anchor = area
	}
	cohort, err := analysis.CohortExport(stacked, areas, anchor)
	if err != nil {
		return err
	}
	return s.save(ctx, tables.FromCohort(cohort), s.names().Cohort)
}

type scmStep struct {
	BaseStep
	*env
}

func (s *scmStep) Validate(*RunState) error {
	_, err := s.area()
	return err
}

func (s *scmStep) Execute(ctx context.Context, state *RunState) error {
	area, err := s.area()
	if err != nil {
		return err
	}
	joined, err := s.joined(ctx, state.Data)
	if err != nil {
		return err
	}

	p := s.pipeline()
	var columns []string
	if len(p.ExtraSCMFields) > 0 {
		columns = append(columns, analysis.DefaultSCMColumns...)
		for _, f := range p.ExtraSCMFields {
			if !slices.Contains(columns, f) {
				columns = append(columns, f)
			}
		}
	}
	rows, err := analysis.PrepareSCMPanel(joined, analysis.SCMConfig{
		Area:    area,
		Before:  p.QuartersBefore,
		After:   p.QuartersAfter,
		Columns: columns,
	})
	if err != nil {
		return err
	}
	if p.ScaleMethod != "" {
		scaled := p.ScaleColumns
		if len(scaled) == 0 {
			scaled = analysis.SCMColumns(rows)
		}
		specs := analysis.ScaleSpecs(scaled, analysis.ScaleMethod(p.ScaleMethod), p.Winsorize, p.WinsorLower, p.WinsorUpper)
		if err := analysis.Scale(rows, specs); err != nil {
			return err
		}
	}
	state.Step(s.ID()).SetRows(len(joined), len(rows), nil)
	state.Data.SCM = rows

	if err := s.save(ctx, tables.FromSCM(rows), s.names().SCM); err != nil {
		return err
	}
	if s.Solver == nil {
		return nil
	}

	result, err := analysis.Fit(ctx, s.Solver, rows, analysis.ColOrderValue, area)
	if err != nil {
		return err
	}
	placebos, err := analysis.Placebos(ctx, s.Solver, rows, analysis.ColOrderValue, area)
	if err != nil {
		return err
	}
	report := analysis.Report(result, placebos)
	state.Data.SCMReport = &report
	state.Step(s.ID()).SetMessage(fmt.Sprintf("rank %d of %d, p=%.3f", report.Rank, len(placebos)+1, report.PValue))
	s.logger.InfoContext(ctx, "synthetic control fitted",
		slog.String("unit", area),
		slog.Float64("pre_rmspe", report.Fit.PreRMSPE),
		slog.Float64("post_rmspe", report.Fit.PostRMSPE),
		slog.Int("rank", report.Rank),
		slog.Float64("p_value", report.PValue))
	return nil
}

type altControlStep struct {
	BaseStep
	*env
}

func (s *altControlStep) Validate(*RunState) error {
	_, err := s.area()
	return err
}

func (s *altControlStep) Execute(ctx context.Context, state *RunState) error {
	area, err := s.area()
	if err != nil {
		return err
	}
	matched, err := s.matched(ctx, state.Data)
	if err != nil {
		return err
	}

	series := analysis.AlternativeControl(matched, area)
	points := 0
	for _, sr := range series {
		points += len(sr.Points)
	}
	state.Step(s.ID()).SetRows(len(matched), points, nil)

	return s.save(ctx, tables.FromAlternativeControl(series), s.names().AltControl)
}
