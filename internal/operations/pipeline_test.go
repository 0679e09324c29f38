package operations

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"esgpanel/internal/config"
	"esgpanel/internal/exporter"
)

var industries = []string{"manufacturing", "technology", "energy", "retail"}
var provinces = []string{"east", "west", "south"}

// writeStudyWorkbook builds a synthetic but economically plausible firm-year
// panel: ESG raises green-investor attraction, adoption follows firm
// fundamentals, and treated firms gain after the 2018 policy.
func writeStudyWorkbook(t *testing.T, dir string, nFirms, firstYear, lastYear int) string {
	t.Helper()
	rng := rand.New(rand.NewSource(99))

	f := excelize.NewFile()
	defer f.Close()
	_, err := f.NewSheet("panel")
	require.NoError(t, err)
	require.NoError(t, f.DeleteSheet("Sheet1"))

	header := []interface{}{
		"stkcd", "year", "gia", "has_green", "esg", "env", "soc", "gov",
		"size", "lev", "roa", "growth", "cash", "age", "top1", "board",
		"indep", "soe", "big4", "industry", "province", "treated",
	}
	require.NoError(t, f.SetSheetRow("panel", "A1", &header))

	row := 2
	for firm := 0; firm < nFirms; firm++ {
		stkcd := fmt.Sprintf("%06d", firm+1)
		treated := firm % 2
		soe := 0
		if firm%3 == 0 {
			soe = 1
		}
		big4 := 0
		if firm%5 == 0 {
			big4 = 1
		}
		firmEffect := 0.04 * rng.NormFloat64()
		baseESG := 4 + 0.8*rng.NormFloat64()

		for year := firstYear; year <= lastYear; year++ {
			esg := baseESG + 0.3*rng.NormFloat64()
			env := esg + 0.4*rng.NormFloat64()
			soc := esg + 0.4*rng.NormFloat64()
			gov := esg + 0.4*rng.NormFloat64()
			size := 22 + rng.NormFloat64()
			lev := 0.2 + 0.1*rng.Float64()
			roa := 0.05 + 0.03*rng.NormFloat64()
			growth := 0.1 + 0.2*rng.NormFloat64()
			cash := 0.1 + 0.05*rng.Float64()
			age := float64(year - 2000 - firm%8)
			top1 := 0.3 + 0.2*rng.Float64()
			board := float64(7 + firm%5)
			indep := 0.3 + 0.1*rng.Float64()

			policy := 0.0
			if treated == 1 && year >= 2018 {
				policy = 0.05
			}
			gia := 0.05 + 0.02*esg + 0.005*(size-22) + policy + firmEffect + 0.03*rng.NormFloat64()

			pr := 1 / (1 + math.Exp(-(0.6*(esg-4) + 0.3*(size-22))))
			hasGreen := 0
			if rng.Float64() < pr {
				hasGreen = 1
			}

			record := []interface{}{
				stkcd, year, gia, hasGreen, esg, env, soc, gov,
				size, lev, roa, growth, cash, age, top1, board,
				indep, soe, big4,
				industries[firm%len(industries)], provinces[firm%len(provinces)], treated,
			}
			cell := fmt.Sprintf("A%d", row)
			require.NoError(t, f.SetSheetRow("panel", cell, &record))
			row++
		}
	}

	path := filepath.Join(dir, "esg_panel.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestPipelineEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("full pipeline run")
	}

	baseDir := t.TempDir()
	input := writeStudyWorkbook(t, baseDir, 60, 2012, 2019)

	study := config.DefaultStudy()
	study.InputFile = input

	paths, err := config.NewPaths(config.PathsConfig{BaseDir: baseDir})
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories())

	deps := Deps{
		Study: study,
		Paths: paths,
		CSV:   exporter.NewCSVWriter(paths),
	}

	m := NewManager(DefaultStages(deps)...)
	state, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, state.GetStatus())

	for _, id := range []string{"ingest", "profile", "construct", "describe", "estimate", "report", "export"} {
		assert.Equal(t, StageStatusCompleted, state.GetStage(id).GetStatus(), id)
	}

	// Artifacts on disk
	for _, path := range []string{
		paths.RawPanelCSV,
		paths.CleanPanelCSV,
		paths.ProfileCSV,
		paths.ResultsJSON,
		paths.SummaryCSV,
		paths.YearTrendCSV,
		paths.GetReportPath("report.txt"),
		paths.GetPlotPath("profile_hist_gia.png"),
		paths.GetPlotPath("profile_hist_esg.png"),
		paths.GetPlotPath("profile_box_gia.png"),
		paths.GetPlotPath("hist_gia.png"),
		paths.GetPlotPath("corr_pearson.png"),
		paths.GetPlotPath("event_study.png"),
	} {
		info, err := os.Stat(path)
		require.NoError(t, err, path)
		assert.Positive(t, info.Size(), path)
	}

	results := state.Results()
	require.NotNil(t, results)
	assert.Equal(t, 60*8, results.NObs)
	assert.Equal(t, 60, results.NFirms)

	wantModels := []string{
		"ols_bivariate", "ols_controls", "ols_robust", "ols_dynamic",
		"fe_firm", "fe_twoway", "fe_moderation",
		"fe_high_esg", "fe_low_esg", "fe_small", "fe_large",
		"fe_env", "fe_soc", "fe_gov", "re", "iv_2sls", "did",
		"event_study", "gmm_diff", "q25", "q50", "q75", "logit",
	}
	for _, name := range wantModels {
		_, ok := results.Model(name)
		assert.True(t, ok, "missing model %s", name)
	}
	require.NotNil(t, results.Matching)
	assert.Positive(t, results.Matching.NMatched)

	// Constructed lag/difference columns surface in the summary table.
	summarized := make(map[string]bool, len(results.Summaries))
	for _, s := range results.Summaries {
		summarized[s.Variable] = true
	}
	assert.True(t, summarized["l1_gia"])
	assert.True(t, summarized["d_gia"])

	// The DGP puts a positive ESG effect in; two-way FE should find it.
	fe, ok := results.Model("fe_twoway")
	require.True(t, ok)
	coef, ok := fe.Coef("esg")
	require.True(t, ok)
	assert.InDelta(t, 0.02, coef.Estimate, 0.01)
	assert.Less(t, coef.PValue, 0.05)
}

func TestPipelineFailsOnMissingInput(t *testing.T) {
	baseDir := t.TempDir()

	study := config.DefaultStudy()
	study.InputFile = filepath.Join(baseDir, "absent.xlsx")

	paths, err := config.NewPaths(config.PathsConfig{BaseDir: baseDir})
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories())

	deps := Deps{
		Study: study,
		Paths: paths,
		CSV:   exporter.NewCSVWriter(paths),
	}

	m := NewManager(DefaultStages(deps)...)
	state, err := m.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, RunStatusFailed, state.GetStatus())
	assert.Equal(t, StageStatusFailed, state.GetStage("ingest").GetStatus())
	assert.Equal(t, StageStatusSkipped, state.GetStage("estimate").GetStatus())
}
