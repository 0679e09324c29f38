package operations

import (
	"context"
	"log/slog"
	"time"

	"esgpanel/internal/describe"
	"esgpanel/internal/errors"
	"esgpanel/internal/infrastructure"
	"esgpanel/internal/report"
)

// DescribeStage computes the descriptive layer over the estimation panel:
// summary statistics, both correlation matrices, the group mean comparison,
// and yearly trends. It seeds the results bundle later stages append to.
type DescribeStage struct {
	deps Deps
}

// NewDescribeStage creates the describe stage
func NewDescribeStage(deps Deps) *DescribeStage {
	return &DescribeStage{deps: deps}
}

func (s *DescribeStage) ID() string   { return "describe" }
func (s *DescribeStage) Name() string { return "Descriptive statistics" }

func (s *DescribeStage) Validate(state *RunState) error {
	if state.CleanPanel() == nil {
		return errors.NewValidationError("clean_panel", "construct must run first", nil)
	}
	return nil
}

func (s *DescribeStage) Execute(ctx context.Context, state *RunState) error {
	study := s.deps.Study
	p := state.CleanPanel()
	vars := study.ContinuousVars()

	// Constructed lag/difference columns join the summary table; their
	// first firm-years are missing and Summarize skips those cells.
	summaryVars := append([]string{}, vars...)
	for _, name := range []string{"l1_" + study.Dependent, "d_" + study.Dependent} {
		if p.HasColumn(name) {
			summaryVars = append(summaryVars, name)
		}
	}
	summaries, err := describe.Summarize(p, summaryVars)
	if err != nil {
		return err
	}

	pearson, err := describe.Pearson(p, vars)
	if err != nil {
		return err
	}
	spearman, err := describe.Spearman(p, vars)
	if err != nil {
		return err
	}

	diffs, err := describe.CompareGroups(p, study.BinaryDep, vars)
	if err != nil {
		return err
	}

	trendVars := append([]string{study.Dependent, study.KeyVar}, study.Pillars...)
	years, means, err := p.CollapseByYear(trendVars)
	if err != nil {
		return err
	}

	yearList, err := p.Years()
	if err != nil {
		return err
	}
	minYear, maxYear := yearList[0], yearList[0]
	for _, y := range yearList {
		if y < minYear {
			minYear = y
		}
		if y > maxYear {
			maxYear = y
		}
	}

	results := &report.Results{
		RunID:       infrastructure.GetRunID(ctx),
		GeneratedAt: time.Now(),
		InputFile:   study.InputFile,
		NObs:        p.Nrow(),
		NFirms:      distinctFirms(p.Firms()),
		Years:       []int{minYear, maxYear},
		Summaries:   summaries,
		Pearson:     pearson,
		Spearman:    spearman,
		GroupDiffs:  diffs,
		TrendYears:  years,
		TrendMeans:  means,
	}
	state.SetResults(results)

	slog.InfoContext(ctx, "descriptives_computed",
		slog.Int("variables", len(vars)),
		slog.Int("trend_years", len(years)))
	return nil
}

func distinctFirms(firms []string) int {
	seen := make(map[string]struct{}, len(firms))
	for _, f := range firms {
		seen[f] = struct{}{}
	}
	return len(seen)
}
