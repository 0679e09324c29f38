// Command esg-report re-renders the study report from a saved results
// bundle, without re-running the pipeline.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"esgpanel/internal/config"
	"esgpanel/internal/report"
)

func main() {
	resultsPath := flag.String("results", "", "path to results.json (defaults to reports/results.json under the executable directory)")
	model := flag.String("model", "", "render only the named model")
	groupCol := flag.String("group", "has_green", "grouping column label for the mean-comparison table")
	flag.Parse()

	path := *resultsPath
	if path == "" {
		paths, err := config.NewPaths(config.PathsConfig{})
		if err != nil {
			slog.Error("Failed to resolve paths", "error", err)
			os.Exit(1)
		}
		path = paths.ResultsJSON
	}

	results, err := report.Load(path)
	if err != nil {
		slog.Error("Failed to load results", "path", path, "error", err)
		os.Exit(1)
	}

	if *model != "" {
		m, ok := results.Model(*model)
		if !ok {
			slog.Error("Model not found in results", "model", *model)
			os.Exit(1)
		}
		if err := report.RenderRegression(os.Stdout, fmt.Sprintf("Model %s", m.Model), m); err != nil {
			slog.Error("Failed to render model table", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := report.RenderAll(os.Stdout, results, *groupCol); err != nil {
		slog.Error("Failed to render report", "error", err)
		os.Exit(1)
	}
}
