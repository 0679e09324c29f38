// Package report assembles the study's outputs: the results bundle persisted
// as JSON, and the rendered text tables for summaries, correlations,
// regressions, and matching balance.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"esgpanel/internal/describe"
	"esgpanel/internal/estimator"
)

// Results bundles everything a run produced. It is written to disk after the
// estimation stage so report rendering can run without re-estimating.
type Results struct {
	RunID       string                       `json:"run_id"`
	GeneratedAt time.Time                    `json:"generated_at"`
	InputFile   string                       `json:"input_file"`
	NObs        int                          `json:"n_obs"`
	NFirms      int                          `json:"n_firms"`
	Years       []int                        `json:"years"`
	Summaries   []describe.Summary           `json:"summaries"`
	Pearson     *describe.CorrelationMatrix  `json:"pearson,omitempty"`
	Spearman    *describe.CorrelationMatrix  `json:"spearman,omitempty"`
	GroupDiffs  []describe.GroupDiff         `json:"group_diffs,omitempty"`
	Models      []*estimator.Result          `json:"models"`
	Matching    *estimator.MatchingResult    `json:"matching,omitempty"`

	// Yearly means for the trend artifacts
	TrendYears []int                `json:"trend_years,omitempty"`
	TrendMeans map[string][]float64 `json:"trend_means,omitempty"`
}

// Save writes the results bundle as indented JSON.
func (r *Results) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	return nil
}

// Load reads a results bundle written by Save.
func Load(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	var r Results
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	return &r, nil
}

// Model returns the named model result if present.
func (r *Results) Model(name string) (*estimator.Result, bool) {
	for _, m := range r.Models {
		if m.Model == name {
			return m, true
		}
	}
	return nil, false
}
