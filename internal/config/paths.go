package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains all the application paths.
// This is the single source of truth for every file the pipeline reads or
// writes; components never build paths of their own.
type Paths struct {
	BaseDir    string
	DataDir    string
	ReportsDir string
	PlotsDir   string
	LogsDir    string

	// Well-known artifacts
	RawPanelCSV   string
	CleanPanelCSV string
	ResultsJSON   string
	ProfileCSV    string
	SummaryCSV    string
	YearTrendCSV  string
}

// NewPaths resolves all application paths under the given base directory.
// When base is empty the directory containing the executable is used, so the
// pipeline behaves the same whether launched from a shell or a scheduler.
func NewPaths(cfg PathsConfig) (*Paths, error) {
	base := cfg.BaseDir
	if base == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to get executable path: %w", err)
		}
		exe, err = filepath.EvalSymlinks(exe)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve executable symlinks: %w", err)
		}
		base = filepath.Dir(exe)
	}

	dataDir := resolveUnder(base, cfg.DataDir, "data")
	reportsDir := resolveUnder(base, cfg.ReportsDir, "reports")
	plotsDir := resolveUnder(base, cfg.PlotsDir, "plots")
	logsDir := resolveUnder(base, cfg.LogsDir, "logs")

	p := &Paths{
		BaseDir:    base,
		DataDir:    dataDir,
		ReportsDir: reportsDir,
		PlotsDir:   plotsDir,
		LogsDir:    logsDir,

		RawPanelCSV:   filepath.Join(dataDir, "panel_raw.csv"),
		CleanPanelCSV: filepath.Join(dataDir, "panel_clean.csv"),
		ResultsJSON:   filepath.Join(reportsDir, "results.json"),
		ProfileCSV:    filepath.Join(reportsDir, "data_profile.csv"),
		SummaryCSV:    filepath.Join(reportsDir, "summary_stats.csv"),
		YearTrendCSV:  filepath.Join(reportsDir, "year_trends.csv"),
	}
	return p, nil
}

// resolveUnder joins dir under base unless dir is already absolute.
func resolveUnder(base, dir, fallback string) string {
	if dir == "" {
		dir = fallback
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}

// EnsureDirectories creates every directory the pipeline writes into.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.DataDir, p.ReportsDir, p.PlotsDir, p.LogsDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetDataPath returns a path inside the data directory.
func (p *Paths) GetDataPath(filename string) string {
	return filepath.Join(p.DataDir, filename)
}

// GetReportPath returns a path inside the reports directory.
func (p *Paths) GetReportPath(filename string) string {
	return filepath.Join(p.ReportsDir, filename)
}

// GetPlotPath returns a path inside the plots directory.
func (p *Paths) GetPlotPath(filename string) string {
	return filepath.Join(p.PlotsDir, filename)
}

// GetLogPath returns a path inside the logs directory.
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// LogPathResolution logs the resolved directories for debugging.
func (p *Paths) LogPathResolution() {
	slog.Debug("Resolved application paths",
		slog.String("base_dir", p.BaseDir),
		slog.String("data_dir", p.DataDir),
		slog.String("reports_dir", p.ReportsDir),
		slog.String("plots_dir", p.PlotsDir),
		slog.String("logs_dir", p.LogsDir))
}
