package estimator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	apperrors "esgpanel/internal/errors"
)

// BalanceRow reports the covariate balance for one matching variable:
// standardized mean difference between treated and control, before and
// after matching. |SMD| below 0.1 after matching is the usual adequacy
// threshold.
type BalanceRow struct {
	Variable  string  `json:"variable"`
	SMDBefore float64 `json:"smd_before"`
	SMDAfter  float64 `json:"smd_after"`
}

// MatchingResult extends the coefficient-style result with the balance table.
type MatchingResult struct {
	Result
	ATT       float64      `json:"att"`
	ATTStdErr float64      `json:"att_std_err"`
	NMatched  int          `json:"n_matched"`
	Balance   []BalanceRow `json:"balance"`
}

// PropensityMatch estimates the average treatment effect on the treated by
// nearest-neighbor matching (1:1, with replacement) on the logit propensity
// score within the given caliper. The treatment indicator is the design's
// dependent variable; outcome supplies the outcome values aligned with the
// design rows.
func PropensityMatch(d *Design, outcome []float64, caliper float64) (*MatchingResult, error) {
	n, _ := d.X.Dims()
	if len(outcome) != n {
		return nil, fmt.Errorf("outcome length %d does not match design rows %d", len(outcome), n)
	}
	if caliper <= 0 {
		return nil, fmt.Errorf("caliper must be positive, got %.4f", caliper)
	}

	fit, err := fitLogit(d)
	if err != nil {
		return nil, fmt.Errorf("propensity model: %w", err)
	}
	scores := fit.probs

	var treatedIdx, controlIdx []int
	for i := 0; i < n; i++ {
		if d.Y[i] == 1 {
			treatedIdx = append(treatedIdx, i)
		} else {
			controlIdx = append(controlIdx, i)
		}
	}
	if len(treatedIdx) == 0 || len(controlIdx) == 0 {
		return nil, fmt.Errorf("%w: matching needs both treated and control units",
			apperrors.ErrInsufficientData)
	}

	// Nearest neighbor with replacement within caliper
	pairs := make(map[int]int) // treated index -> matched control index
	var diffs []float64
	for _, t := range treatedIdx {
		best := -1
		bestDist := caliper
		for _, c := range controlIdx {
			dist := math.Abs(scores[t] - scores[c])
			if dist <= bestDist {
				bestDist = dist
				best = c
			}
		}
		if best < 0 {
			continue // off support
		}
		if math.IsNaN(outcome[t]) || math.IsNaN(outcome[best]) {
			continue
		}
		pairs[t] = best
		diffs = append(diffs, outcome[t]-outcome[best])
	}
	if len(diffs) < 2 {
		return nil, fmt.Errorf("%w: %d matched pairs within caliper %.3f",
			apperrors.ErrInsufficientData, len(diffs), caliper)
	}

	att, attVar := stat.MeanVariance(diffs, nil)
	attSE := math.Sqrt(attVar / float64(len(diffs)))
	attStat := att / attSE

	res := &MatchingResult{
		Result: Result{
			Model:     "psm",
			Method:    fmt.Sprintf("PSM 1:1 nearest neighbor, caliper %.3f, with replacement", caliper),
			Dependent: d.Dependent,
			N:         n,
			NGroups:   d.NFirms(),
		},
		ATT:       att,
		ATTStdErr: attSE,
		NMatched:  len(diffs),
	}
	res.Coefficients = []Coefficient{{
		Name:     "att",
		Estimate: att,
		StdErr:   attSE,
		Stat:     attStat,
		PValue:   pValueT(attStat, float64(len(diffs)-1)),
	}}
	res.SetDiagnostic("n_treated", float64(len(treatedIdx)))
	res.SetDiagnostic("n_control", float64(len(controlIdx)))
	res.SetDiagnostic("n_matched", float64(len(diffs)))
	res.SetDiagnostic("propensity_pseudo_r2", fit.pseudoR2)

	res.Balance = balanceTable(d, pairs, treatedIdx, controlIdx)
	return res, nil
}

// balanceTable computes standardized mean differences per covariate before
// and after matching. The covariates are the design's regressor columns
// minus the constant.
func balanceTable(d *Design, pairs map[int]int, treatedIdx, controlIdx []int) []BalanceRow {
	_, k := d.X.Dims()
	start := 0
	if d.Intercept {
		start = 1
	}

	var rows []BalanceRow
	for j := start; j < k; j++ {
		col := func(idx []int) []float64 {
			out := make([]float64, len(idx))
			for i, r := range idx {
				out[i] = d.X.At(r, j)
			}
			return out
		}

		tVals := col(treatedIdx)
		cVals := col(controlIdx)
		before := smd(tVals, cVals)

		var mt, mc []float64
		for t, c := range pairs {
			mt = append(mt, d.X.At(t, j))
			mc = append(mc, d.X.At(c, j))
		}
		after := smd(mt, mc)

		rows = append(rows, BalanceRow{
			Variable:  d.Names[j],
			SMDBefore: before,
			SMDAfter:  after,
		})
	}
	return rows
}

// smd is the standardized mean difference with the pooled SD denominator.
func smd(a, b []float64) float64 {
	if len(a) < 2 || len(b) < 2 {
		return math.NaN()
	}
	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)
	pooled := math.Sqrt((va + vb) / 2)
	if pooled == 0 {
		return 0
	}
	return (ma - mb) / pooled
}
