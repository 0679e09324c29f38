package operations

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esgpanel/internal/config"
	"esgpanel/internal/dataset"
	"esgpanel/internal/exporter"
)

func constructDeps(t *testing.T) Deps {
	t.Helper()

	study := config.DefaultStudy()
	study.Controls = []string{"size", "soe"}
	study.WinsorVars = []string{"gia"}
	study.ProvinceCol = ""

	paths, err := config.NewPaths(config.PathsConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories())

	return Deps{Study: study, Paths: paths, CSV: exporter.NewCSVWriter(paths)}
}

func constructPanel(t *testing.T) *dataset.Panel {
	t.Helper()
	records := [][]string{
		{"stkcd", "year", "gia", "esg", "size", "soe", "industry"},
		{"000001", "2020", "0.10", "3.0", "21.0", "1", "manufacturing"},
		{"000001", "2021", "0.12", "3.5", "21.2", "1", "manufacturing"},
		{"000002", "2020", "0.05", "4.0", "22.0", "0", "manufacturing"},
		{"000002", "2021", "0.08", "4.5", "22.3", "0", "manufacturing"},
		{"000003", "2020", "0.20", "5.0", "23.0", "0", "technology"},
		{"000003", "2021", "0.22", "5.5", "23.1", "0", "technology"},
		{"000004", "2020", "0.15", "6.0", "24.0", "1", "technology"},
		{"000004", "2021", "0.18", "6.5", "24.2", "1", "technology"},
	}
	p, err := dataset.FromRecords(records, "stkcd", "year", []string{"industry"})
	require.NoError(t, err)
	return p
}

func TestConstructStageBuildsDerivedColumns(t *testing.T) {
	deps := constructDeps(t)
	state := NewRunState("test-run")
	state.SetRawPanel(constructPanel(t))

	stage := NewConstructStage(deps)
	require.NoError(t, stage.Validate(state))
	require.NoError(t, stage.Execute(context.Background(), state))

	clean := state.CleanPanel()
	require.NotNil(t, clean)

	for _, col := range []string{
		"esg_std", "esg_high", "esg_x_soe", "size_q",
		"l1_gia", "d_gia", "iv_esg", "ind_technology",
	} {
		assert.True(t, clean.HasColumn(col), "missing column %s", col)
	}

	std, err := clean.Float("esg_std")
	require.NoError(t, err)
	var sum float64
	for _, v := range std {
		sum += v
	}
	assert.InDelta(t, 0, sum/float64(len(std)), 1e-9)

	inter, err := clean.Float("esg_x_soe")
	require.NoError(t, err)
	esg, err := clean.Float("esg")
	require.NoError(t, err)
	soe, err := clean.Float("soe")
	require.NoError(t, err)
	for i := range inter {
		assert.InDelta(t, esg[i]*soe[i], inter[i], 1e-12)
	}

	lag, err := clean.Float("l1_gia")
	require.NoError(t, err)
	gia, err := clean.Float("gia")
	require.NoError(t, err)
	years, err := clean.Years()
	require.NoError(t, err)
	firms := clean.Firms()
	for i := range lag {
		if years[i] == 2020 {
			assert.True(t, math.IsNaN(lag[i]), "firm %s first year must have no lag", firms[i])
			continue
		}
		assert.InDelta(t, gia[i-1], lag[i], 1e-12)
	}

	// Reference categories are omitted from the dummy expansion.
	assert.False(t, clean.HasColumn("ind_manufacturing"))
}

func TestConstructStageValidateRequiresIngest(t *testing.T) {
	stage := NewConstructStage(constructDeps(t))
	assert.Error(t, stage.Validate(NewRunState("test-run")))
}

func TestColumnsWithPrefix(t *testing.T) {
	p := constructPanel(t)
	require.NoError(t, p.SetFloat("ind_technology", make([]float64, p.Nrow())))
	require.NoError(t, p.SetFloat("prov_east", make([]float64, p.Nrow())))

	cols := columnsWithPrefix(p, "ind_", "prov_")
	assert.Equal(t, []string{"ind_technology", "prov_east"}, cols)
}
