package operations

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"esgpanel/internal/charts"
	"esgpanel/internal/errors"
	"esgpanel/internal/estimator"
	"esgpanel/internal/report"
)

// ReportStage renders the text report and every figure. Chart rendering is
// independent per file, so the figures draw concurrently.
type ReportStage struct {
	deps Deps
}

// NewReportStage creates the report stage
func NewReportStage(deps Deps) *ReportStage {
	return &ReportStage{deps: deps}
}

func (s *ReportStage) ID() string   { return "report" }
func (s *ReportStage) Name() string { return "Render report and figures" }

func (s *ReportStage) Validate(state *RunState) error {
	if state.Results() == nil {
		return errors.NewValidationError("results", "estimate must run first", nil)
	}
	if state.CleanPanel() == nil {
		return errors.NewValidationError("clean_panel", "construct must run first", nil)
	}
	return nil
}

func (s *ReportStage) Execute(ctx context.Context, state *RunState) error {
	study := s.deps.Study
	paths := s.deps.Paths
	results := state.Results()
	p := state.CleanPanel()

	reportPath := paths.GetReportPath("report.txt")
	f, err := os.Create(reportPath)
	if err != nil {
		return err
	}
	if err := report.RenderAll(f, results, study.BinaryDep); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.InfoContext(ctx, "report_rendered", slog.String("path", reportPath))

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
	keyByYear := make(map[int][]float64)
	for i, y := range years {
		keyByYear[y] = append(keyByYear[y], key[i])
	}
	yearOrder := make([]int, 0, len(keyByYear))
	for y := range keyByYear {
		yearOrder = append(yearOrder, y)
	}
	sort.Ints(yearOrder)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		return charts.Histogram(dep, study.Dependent+" distribution",
			paths.GetPlotPath("hist_"+study.Dependent+".png"))
	})
	g.Go(func() error {
		return charts.Histogram(key, study.KeyVar+" distribution",
			paths.GetPlotPath("hist_"+study.KeyVar+".png"))
	})
	g.Go(func() error {
		return charts.BoxPlotByYear(yearOrder, keyByYear, study.KeyVar+" by year",
			paths.GetPlotPath("box_"+study.KeyVar+".png"))
	})
	if results.Pearson != nil {
		g.Go(func() error {
			return charts.Heatmap(results.Pearson, "Pearson correlations",
				paths.GetPlotPath("corr_pearson.png"))
		})
	}
	if len(results.TrendYears) > 0 {
		g.Go(func() error {
			return charts.TrendLines(results.TrendYears, results.TrendMeans,
				"Yearly means", paths.GetPlotPath("trends.png"))
		})
	}
	if evt, ok := results.Model("event_study"); ok {
		coefs := eventCoefficients(evt)
		if len(coefs) > 0 {
			g.Go(func() error {
				return charts.CoefficientPlot(coefs, "Event study",
					paths.GetPlotPath("event_study.png"))
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.InfoContext(ctx, "figures_rendered", slog.String("dir", paths.PlotsDir))
	return nil
}

// eventCoefficients pulls the relative-event-year terms out of the event
// study result, in the order the estimator emitted them.
func eventCoefficients(res *estimator.Result) []estimator.Coefficient {
	var out []estimator.Coefficient
	for _, c := range res.Coefficients {
		if strings.HasPrefix(c.Name, "evt_") {
			out = append(out, c)
		}
	}
	return out
}

// ExportStage persists the results bundle and the derived CSV artifacts.
type ExportStage struct {
	deps Deps
}

// NewExportStage creates the export stage
func NewExportStage(deps Deps) *ExportStage {
	return &ExportStage{deps: deps}
}

func (s *ExportStage) ID() string   { return "export" }
func (s *ExportStage) Name() string { return "Export results" }

func (s *ExportStage) Validate(state *RunState) error {
	if state.Results() == nil {
		return errors.NewValidationError("results", "estimate must run first", nil)
	}
	return nil
}

func (s *ExportStage) Execute(ctx context.Context, state *RunState) error {
	results := state.Results()
	paths := s.deps.Paths

	if err := results.Save(paths.ResultsJSON); err != nil {
		return err
	}
	if err := s.deps.CSV.WriteSummaries(results.Summaries, paths.SummaryCSV); err != nil {
		return err
	}
	if len(results.TrendYears) > 0 {
		if err := s.deps.CSV.WriteYearTrends(results.TrendYears, results.TrendMeans, paths.YearTrendCSV); err != nil {
			return err
		}
	}

	slog.InfoContext(ctx, "results_exported",
		slog.String("results_json", paths.ResultsJSON),
		slog.Int("model_count", len(results.Models)))
	return nil
}
