package operations

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"esgpanel/internal/charts"
	"esgpanel/internal/config"
	"esgpanel/internal/dataset"
	"esgpanel/internal/errors"
	"esgpanel/internal/exporter"
	"esgpanel/internal/profile"
	"esgpanel/internal/transform"
)

// Deps carries the shared dependencies every stage receives.
type Deps struct {
	Study config.StudyConfig
	Paths *config.Paths
	CSV   *exporter.CSVWriter
}

// DefaultStages returns the full pipeline in execution order.
func DefaultStages(deps Deps) []Stage {
	return []Stage{
		NewIngestStage(deps),
		NewProfileStage(deps),
		NewConstructStage(deps),
		NewDescribeStage(deps),
		NewEstimateStage(deps),
		NewReportStage(deps),
		NewExportStage(deps),
	}
}

// IngestStage reads the spreadsheet into the canonical panel, validates the
// firm-year key, and snapshots the raw panel as CSV.
type IngestStage struct {
	deps Deps
}

// NewIngestStage creates the ingest stage
func NewIngestStage(deps Deps) *IngestStage {
	return &IngestStage{deps: deps}
}

func (s *IngestStage) ID() string   { return "ingest" }
func (s *IngestStage) Name() string { return "Ingest panel spreadsheet" }

func (s *IngestStage) Validate(state *RunState) error {
	if s.deps.Study.InputFile == "" {
		return errors.NewValidationError("input_file", "input file is required", "")
	}
	return nil
}

func (s *IngestStage) Execute(ctx context.Context, state *RunState) error {
	study := s.deps.Study

	inputPath := study.InputFile
	if !filepath.IsAbs(inputPath) {
		inputPath = filepath.Join(s.deps.Paths.BaseDir, inputPath)
	}

	stringCols := []string{study.IndustryCol}
	if study.ProvinceCol != "" {
		stringCols = append(stringCols, study.ProvinceCol)
	}

	p, err := dataset.ReadXLSX(inputPath, study.SheetName, study.FirmCol, study.YearCol, stringCols)
	if err != nil {
		return err
	}

	if err := p.Validate(); err != nil {
		return err
	}
	p.SortByFirmYear()

	slog.InfoContext(ctx, "panel_ingested",
		slog.String("input", inputPath),
		slog.Int("rows", p.Nrow()),
		slog.Int("columns", len(p.Names())))

	if err := s.deps.CSV.WritePanel(p, s.deps.Paths.RawPanelCSV); err != nil {
		return err
	}

	state.SetRawPanel(p)
	return nil
}

// ProfileStage audits the raw panel and writes the data quality report. The
// findings are advisory; only structural defects abort the run, and those
// were already caught by ingest validation.
type ProfileStage struct {
	deps Deps
}

// NewProfileStage creates the profile stage
func NewProfileStage(deps Deps) *ProfileStage {
	return &ProfileStage{deps: deps}
}

func (s *ProfileStage) ID() string   { return "profile" }
func (s *ProfileStage) Name() string { return "Audit raw panel quality" }

func (s *ProfileStage) Validate(state *RunState) error {
	if state.RawPanel() == nil {
		return errors.NewValidationError("raw_panel", "ingest must run first", nil)
	}
	return nil
}

func (s *ProfileStage) Execute(ctx context.Context, state *RunState) error {
	p := state.RawPanel()

	rep, err := profile.Profile(p, s.deps.Study.ContinuousVars())
	if err != nil {
		return err
	}

	for _, flag := range rep.Flags() {
		slog.WarnContext(ctx, "data_quality_flag", slog.String("finding", flag))
	}

	headers, records := rep.Records()
	if err := s.deps.CSV.WriteSimpleCSV(s.deps.Paths.ProfileCSV, headers, records); err != nil {
		return err
	}

	if err := s.renderDiagnostics(ctx, state); err != nil {
		return err
	}

	slog.InfoContext(ctx, "panel_profiled",
		slog.Int("columns", len(rep.Columns)),
		slog.Int("flags", len(rep.Flags())))

	state.SetAudit(rep)
	return nil
}

// renderDiagnostics draws the raw-distribution figures. The plots are
// independent files, so they draw concurrently.
func (s *ProfileStage) renderDiagnostics(ctx context.Context, state *RunState) error {
	study := s.deps.Study
	paths := s.deps.Paths
	p := state.RawPanel()

	dep, err := p.Float(study.Dependent)
	if err != nil {
		return err
	}
	key, err := p.Float(study.KeyVar)
	if err != nil {
		return err
	}
	years, err := p.Years()
	if err != nil {
		return err
	}
	depByYear := make(map[int][]float64)
	for i, y := range years {
		depByYear[y] = append(depByYear[y], dep[i])
	}
	yearOrder := make([]int, 0, len(depByYear))
	for y := range depByYear {
		yearOrder = append(yearOrder, y)
	}
	sort.Ints(yearOrder)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		return charts.Histogram(dep, "raw "+study.Dependent,
			paths.GetPlotPath("profile_hist_"+study.Dependent+".png"))
	})
	g.Go(func() error {
		return charts.Histogram(key, "raw "+study.KeyVar,
			paths.GetPlotPath("profile_hist_"+study.KeyVar+".png"))
	})
	g.Go(func() error {
		return charts.BoxPlotByYear(yearOrder, depByYear, "raw "+study.Dependent+" by year",
			paths.GetPlotPath("profile_box_"+study.Dependent+".png"))
	})
	return g.Wait()
}

// ConstructStage builds the estimation panel: winsorized continuous
// variables, industry and province dummies, and the leave-one-out
// industry-year instrument for the key variable.
type ConstructStage struct {
	deps Deps
}

// NewConstructStage creates the construct stage
func NewConstructStage(deps Deps) *ConstructStage {
	return &ConstructStage{deps: deps}
}

func (s *ConstructStage) ID() string   { return "construct" }
func (s *ConstructStage) Name() string { return "Construct estimation variables" }

func (s *ConstructStage) Validate(state *RunState) error {
	if state.RawPanel() == nil {
		return errors.NewValidationError("raw_panel", "ingest must run first", nil)
	}
	return nil
}

func (s *ConstructStage) Execute(ctx context.Context, state *RunState) error {
	study := s.deps.Study
	raw := state.RawPanel()

	clean, err := raw.Select(raw.Names())
	if err != nil {
		return err
	}

	bounds := transform.Bounds{Lower: study.WinsorLower, Upper: study.WinsorUpper}
	for _, col := range study.WinsorVars {
		values, err := clean.Float(col)
		if err != nil {
			return err
		}
		out, lo, hi, err := transform.Winsorize(values, bounds)
		if err != nil {
			return fmt.Errorf("winsorize %s: %w", col, err)
		}
		if err := clean.SetFloat(col, out); err != nil {
			return err
		}
		slog.DebugContext(ctx, "winsorized",
			slog.String("column", col),
			slog.Float64("lower_cut", lo),
			slog.Float64("upper_cut", hi))
	}

	if err := addDummies(clean, study.IndustryCol, "ind"); err != nil {
		return err
	}
	if study.ProvinceCol != "" {
		if err := addDummies(clean, study.ProvinceCol, "prov"); err != nil {
			return err
		}
	}

	key, err := clean.Float(study.KeyVar)
	if err != nil {
		return err
	}
	std, err := transform.Standardize(key)
	if err != nil {
		return err
	}
	if err := clean.SetFloat(study.KeyVar+"_std", std); err != nil {
		return err
	}
	high, err := transform.AboveMedian(key)
	if err != nil {
		return err
	}
	if err := clean.SetFloat(study.KeyVar+"_high", high); err != nil {
		return err
	}

	// Moderation term: key variable scaled by state ownership.
	if hasControl(study.Controls, "soe") {
		soe, err := clean.Float("soe")
		if err != nil {
			return err
		}
		inter, err := transform.Interaction(key, soe)
		if err != nil {
			return err
		}
		if err := clean.SetFloat(study.KeyVar+"_x_soe", inter); err != nil {
			return err
		}
	}

	if hasControl(study.Controls, "size") {
		size, err := clean.Float("size")
		if err != nil {
			return err
		}
		bins, err := transform.QuartileBins(size)
		if err != nil {
			return err
		}
		if err := clean.SetFloat("size_q", bins); err != nil {
			return err
		}
	}

	lagDep, err := clean.Lag(study.Dependent, 1)
	if err != nil {
		return err
	}
	if err := clean.SetFloat("l1_"+study.Dependent, lagDep); err != nil {
		return err
	}
	diffDep, err := clean.Diff(study.Dependent)
	if err != nil {
		return err
	}
	if err := clean.SetFloat("d_"+study.Dependent, diffDep); err != nil {
		return err
	}

	iv, err := clean.LeaveOneOutMean(study.KeyVar, study.IndustryCol)
	if err != nil {
		return err
	}
	if err := clean.SetFloat(InstrumentCol(study.KeyVar), iv); err != nil {
		return err
	}

	if err := clean.Validate(); err != nil {
		return err
	}
	if err := s.deps.CSV.WritePanel(clean, s.deps.Paths.CleanPanelCSV); err != nil {
		return err
	}

	slog.InfoContext(ctx, "estimation_panel_built",
		slog.Int("rows", clean.Nrow()),
		slog.Int("columns", len(clean.Names())))

	state.SetCleanPanel(clean)
	return nil
}

// InstrumentCol names the constructed leave-one-out instrument for a column.
func InstrumentCol(keyVar string) string {
	return "iv_" + keyVar
}

func hasControl(controls []string, name string) bool {
	for _, c := range controls {
		if c == name {
			return true
		}
	}
	return false
}

func addDummies(p *dataset.Panel, col, prefix string) error {
	labels, err := p.Strings(col)
	if err != nil {
		return err
	}
	dummies, names, err := transform.Dummies(labels, prefix)
	if err != nil {
		return err
	}
	// The first level is the omitted reference category; keeping it would be
	// collinear with the intercept.
	for _, name := range names[1:] {
		if err := p.SetFloat(name, dummies[name]); err != nil {
			return err
		}
	}
	return nil
}
