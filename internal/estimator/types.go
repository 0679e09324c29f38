package estimator

// Coefficient is one estimated parameter with its inference statistics.
type Coefficient struct {
	Name     string  `json:"name"`
	Estimate float64 `json:"estimate"`
	StdErr   float64 `json:"std_err"`
	Stat     float64 `json:"stat"`
	PValue   float64 `json:"p_value"`
}

// Result is the transient output of one model fit. It carries everything the
// reporting stage needs and nothing else.
type Result struct {
	Model        string             `json:"model"`
	Method       string             `json:"method"`
	Dependent    string             `json:"dependent"`
	Coefficients []Coefficient      `json:"coefficients"`
	N            int                `json:"n"`
	NGroups      int                `json:"n_groups,omitempty"`
	R2           float64            `json:"r2"`
	AdjR2        float64            `json:"adj_r2"`
	Diagnostics  map[string]float64 `json:"diagnostics,omitempty"`
}

// Coef returns the named coefficient if present.
func (r *Result) Coef(name string) (Coefficient, bool) {
	for _, c := range r.Coefficients {
		if c.Name == name {
			return c, true
		}
	}
	return Coefficient{}, false
}

// SetDiagnostic records a named fit diagnostic (first-stage F, Hansen J,
// Hausman statistic, pseudo R2, ATT, ...).
func (r *Result) SetDiagnostic(name string, value float64) {
	if r.Diagnostics == nil {
		r.Diagnostics = make(map[string]float64)
	}
	r.Diagnostics[name] = value
}

// SEType selects the covariance estimator for OLS-family fits.
type SEType int

const (
	// SEClassical is the homoskedastic covariance estimator
	SEClassical SEType = iota
	// SERobust is the HC1 heteroskedasticity-robust estimator
	SERobust
	// SECluster clusters by firm
	SECluster
)

// String returns the label used in rendered tables.
func (s SEType) String() string {
	switch s {
	case SEClassical:
		return "classical"
	case SERobust:
		return "robust"
	case SECluster:
		return "cluster(firm)"
	default:
		return "unknown"
	}
}
