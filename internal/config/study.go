package config

// StudyConfig describes the empirical study: which columns play which role
// and the tuning parameters for each transformation and estimator.
//
// The canonical panel is keyed by (stkcd, year). The dependent variable is
// green-investor attraction (gia); the explanatory variable of interest is
// the composite ESG score with Environmental/Social/Governance pillars.
type StudyConfig struct {
	// Input
	InputFile string `yaml:"input_file" envconfig:"INPUT_FILE" validate:"required"`
	SheetName string `yaml:"sheet_name" envconfig:"SHEET_NAME"`

	// Column roles
	FirmCol     string   `yaml:"firm_col" validate:"required"`
	YearCol     string   `yaml:"year_col" validate:"required"`
	Dependent   string   `yaml:"dependent" validate:"required"`
	BinaryDep   string   `yaml:"binary_dependent" validate:"required"`
	KeyVar      string   `yaml:"key_var" validate:"required"`
	Pillars     []string `yaml:"pillars"`
	Controls    []string `yaml:"controls" validate:"min=1"`
	IndustryCol string   `yaml:"industry_col" validate:"required"`
	ProvinceCol string   `yaml:"province_col"`
	TreatedCol  string   `yaml:"treated_col" validate:"required"`

	// Winsorization bounds as fractions (e.g. 0.01 / 0.99)
	WinsorLower float64  `yaml:"winsor_lower" validate:"gte=0,lt=0.5"`
	WinsorUpper float64  `yaml:"winsor_upper" validate:"gt=0.5,lte=1"`
	WinsorVars  []string `yaml:"winsor_vars"`

	// Quantile regression targets
	Quantiles []float64 `yaml:"quantiles" validate:"dive,gt=0,lt=1"`

	// Difference-in-differences / event study
	EventYear   int `yaml:"event_year" validate:"required"`
	EventWindow int `yaml:"event_window" validate:"gte=1,lte=6"`

	// Dynamic panel GMM
	GMMMaxLag int `yaml:"gmm_max_lag" validate:"gte=2,lte=8"`

	// Propensity-score matching
	PSMCaliper float64 `yaml:"psm_caliper" validate:"gt=0,lte=0.5"`
}

// DefaultStudy returns the study specification used by the ESG paper replication.
func DefaultStudy() StudyConfig {
	return StudyConfig{
		InputFile:   "data/esg_panel.xlsx",
		SheetName:   "panel",
		FirmCol:     "stkcd",
		YearCol:     "year",
		Dependent:   "gia",
		BinaryDep:   "has_green",
		KeyVar:      "esg",
		Pillars:     []string{"env", "soc", "gov"},
		Controls:    []string{"size", "lev", "roa", "growth", "cash", "age", "top1", "board", "indep", "soe", "big4"},
		IndustryCol: "industry",
		ProvinceCol: "province",
		TreatedCol:  "treated",
		WinsorLower: 0.01,
		WinsorUpper: 0.99,
		WinsorVars:  []string{"gia", "esg", "env", "soc", "gov", "size", "lev", "roa", "growth", "cash", "top1"},
		Quantiles:   []float64{0.25, 0.50, 0.75},
		EventYear:   2018,
		EventWindow: 3,
		GMMMaxLag:   4,
		PSMCaliper:  0.05,
	}
}

// applyDefaults fills zero-valued study parameters with the default study.
// Partial YAML files only need to override what they change.
func (s *StudyConfig) applyDefaults() {
	def := DefaultStudy()
	if s.InputFile == "" {
		s.InputFile = def.InputFile
	}
	if s.FirmCol == "" {
		s.FirmCol = def.FirmCol
	}
	if s.YearCol == "" {
		s.YearCol = def.YearCol
	}
	if s.Dependent == "" {
		s.Dependent = def.Dependent
	}
	if s.BinaryDep == "" {
		s.BinaryDep = def.BinaryDep
	}
	if s.KeyVar == "" {
		s.KeyVar = def.KeyVar
	}
	if len(s.Pillars) == 0 {
		s.Pillars = def.Pillars
	}
	if len(s.Controls) == 0 {
		s.Controls = def.Controls
	}
	if s.IndustryCol == "" {
		s.IndustryCol = def.IndustryCol
	}
	if s.ProvinceCol == "" {
		s.ProvinceCol = def.ProvinceCol
	}
	if s.TreatedCol == "" {
		s.TreatedCol = def.TreatedCol
	}
	if s.WinsorLower == 0 {
		s.WinsorLower = def.WinsorLower
	}
	if s.WinsorUpper == 0 {
		s.WinsorUpper = def.WinsorUpper
	}
	if len(s.WinsorVars) == 0 {
		s.WinsorVars = def.WinsorVars
	}
	if len(s.Quantiles) == 0 {
		s.Quantiles = def.Quantiles
	}
	if s.EventYear == 0 {
		s.EventYear = def.EventYear
	}
	if s.EventWindow == 0 {
		s.EventWindow = def.EventWindow
	}
	if s.GMMMaxLag == 0 {
		s.GMMMaxLag = def.GMMMaxLag
	}
	if s.PSMCaliper == 0 {
		s.PSMCaliper = def.PSMCaliper
	}
}

// ContinuousVars returns every continuous column the study touches, in a
// stable order: dependent, key variable, pillars, then controls.
func (s *StudyConfig) ContinuousVars() []string {
	vars := []string{s.Dependent, s.KeyVar}
	vars = append(vars, s.Pillars...)
	vars = append(vars, s.Controls...)
	return vars
}
