package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Tracing TracingConfig `yaml:"tracing" envconfig:"TRACING"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
	Study   StudyConfig   `yaml:"study" envconfig:"STUDY"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/pipeline.log"`
}

// TracingConfig controls the OpenTelemetry stdout trace exporter
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled" envconfig:"ENABLED" default:"false"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/traces.jsonl"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	BaseDir    string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	ReportsDir string `yaml:"reports_dir" envconfig:"REPORTS_DIR" default:"reports"`
	PlotsDir   string `yaml:"plots_dir" envconfig:"PLOTS_DIR" default:"plots"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// Load loads configuration from environment variables and config file.
// Environment variables (prefix ESG) take precedence over the YAML file.
func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process("ESG", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Load from config file if exists
	configFile := getConfigFilePath()
	if configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	cfg.Study.applyDefaults()

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence).
// envconfig fills struct defaults during Process, so a zero-value test
// cannot tell an explicit env value from an untouched field; explicit env
// assignment is detected through the variable itself.
func mergeConfigs(fileConfig, envConfig Config) Config {
	merged := envConfig

	if fileConfig.Logging.Level != "" && !envSet("ESG_LOGGING_LEVEL") {
		merged.Logging.Level = fileConfig.Logging.Level
	}
	if fileConfig.Logging.Format != "" && !envSet("ESG_LOGGING_FORMAT") {
		merged.Logging.Format = fileConfig.Logging.Format
	}
	if fileConfig.Logging.Output != "" && !envSet("ESG_LOGGING_OUTPUT") {
		merged.Logging.Output = fileConfig.Logging.Output
	}
	if fileConfig.Logging.FilePath != "" && !envSet("ESG_LOGGING_FILE_PATH") {
		merged.Logging.FilePath = fileConfig.Logging.FilePath
	}

	if fileConfig.Tracing.Enabled && !envSet("ESG_TRACING_ENABLED") {
		merged.Tracing.Enabled = true
	}
	if fileConfig.Tracing.FilePath != "" && !envSet("ESG_TRACING_FILE_PATH") {
		merged.Tracing.FilePath = fileConfig.Tracing.FilePath
	}

	if fileConfig.Paths.BaseDir != "" && !envSet("ESG_PATHS_BASE_DIR") {
		merged.Paths.BaseDir = fileConfig.Paths.BaseDir
	}
	if fileConfig.Paths.DataDir != "" && !envSet("ESG_PATHS_DATA_DIR") {
		merged.Paths.DataDir = fileConfig.Paths.DataDir
	}
	if fileConfig.Paths.ReportsDir != "" && !envSet("ESG_PATHS_REPORTS_DIR") {
		merged.Paths.ReportsDir = fileConfig.Paths.ReportsDir
	}
	if fileConfig.Paths.PlotsDir != "" && !envSet("ESG_PATHS_PLOTS_DIR") {
		merged.Paths.PlotsDir = fileConfig.Paths.PlotsDir
	}
	if fileConfig.Paths.LogsDir != "" && !envSet("ESG_PATHS_LOGS_DIR") {
		merged.Paths.LogsDir = fileConfig.Paths.LogsDir
	}

	merged.Study = mergeStudy(fileConfig.Study, envConfig.Study)
	return merged
}

func envSet(name string) bool {
	_, ok := os.LookupEnv(name)
	return ok
}

// mergeStudy merges the file study config with the env study config.
// Env values win only where they were actually set; the study section is
// list-heavy and lists do not round-trip through envconfig cleanly.
func mergeStudy(fileStudy, envStudy StudyConfig) StudyConfig {
	merged := fileStudy
	if envStudy.InputFile != "" {
		merged.InputFile = envStudy.InputFile
	}
	if envStudy.SheetName != "" {
		merged.SheetName = envStudy.SheetName
	}
	if envStudy.WinsorLower != 0 {
		merged.WinsorLower = envStudy.WinsorLower
	}
	if envStudy.WinsorUpper != 0 {
		merged.WinsorUpper = envStudy.WinsorUpper
	}
	if envStudy.EventYear != 0 {
		merged.EventYear = envStudy.EventYear
	}
	return merged
}

// validate validates the configuration
func (c *Config) validate() error {
	switch c.Logging.Output {
	case "stdout", "file", "both":
	case "":
		c.Logging.Output = "both"
	default:
		return fmt.Errorf("invalid logging output mode: %s", c.Logging.Output)
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/pipeline.log"
	}

	validate := validator.New()
	if err := validate.Struct(&c.Study); err != nil {
		return fmt.Errorf("study config invalid: %w", err)
	}

	if c.Study.WinsorLower >= c.Study.WinsorUpper {
		return fmt.Errorf("winsorization bounds inverted: lower=%.3f, upper=%.3f",
			c.Study.WinsorLower, c.Study.WinsorUpper)
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	// Check for config file in common locations
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/pipeline.log",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			FilePath: "logs/traces.jsonl",
		},
		Paths: PathsConfig{
			DataDir:    "data",
			ReportsDir: "reports",
			PlotsDir:   "plots",
			LogsDir:    "logs",
		},
		Study: DefaultStudy(),
	}
	return cfg
}
