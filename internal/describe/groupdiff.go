package describe

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"esgpanel/internal/dataset"
)

// GroupDiff compares the mean of a variable across a binary grouping
// (for example green-adopter firms against the rest).
type GroupDiff struct {
	Variable  string  `json:"variable"`
	MeanGroup float64 `json:"mean_group"`
	MeanRest  float64 `json:"mean_rest"`
	Diff      float64 `json:"diff"`
	TStat     float64 `json:"t_stat"`
	PValue    float64 `json:"p_value"`
	NGroup    int     `json:"n_group"`
	NRest     int     `json:"n_rest"`
}

// CompareGroups runs Welch two-sample t-tests of each variable in cols
// between observations where groupCol is nonzero and the rest.
func CompareGroups(p *dataset.Panel, groupCol string, cols []string) ([]GroupDiff, error) {
	group, err := p.Float(groupCol)
	if err != nil {
		return nil, err
	}

	out := make([]GroupDiff, 0, len(cols))
	for _, col := range cols {
		values, err := p.Float(col)
		if err != nil {
			return nil, err
		}
		var inGroup, rest []float64
		for i, v := range values {
			if math.IsNaN(v) || math.IsNaN(group[i]) {
				continue
			}
			if group[i] != 0 {
				inGroup = append(inGroup, v)
			} else {
				rest = append(rest, v)
			}
		}
		if len(inGroup) < 2 || len(rest) < 2 {
			return nil, fmt.Errorf("group comparison for %s: each group needs at least 2 observations", col)
		}

		m1, s1 := stat.MeanStdDev(inGroup, nil)
		m0, s0 := stat.MeanStdDev(rest, nil)
		n1, n0 := float64(len(inGroup)), float64(len(rest))

		se := math.Sqrt(s1*s1/n1 + s0*s0/n0)
		t := (m1 - m0) / se

		// Welch-Satterthwaite degrees of freedom.
		num := math.Pow(s1*s1/n1+s0*s0/n0, 2)
		den := math.Pow(s1*s1/n1, 2)/(n1-1) + math.Pow(s0*s0/n0, 2)/(n0-1)
		df := num / den

		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
		pv := 2 * dist.Survival(math.Abs(t))

		out = append(out, GroupDiff{
			Variable:  col,
			MeanGroup: m1,
			MeanRest:  m0,
			Diff:      m1 - m0,
			TStat:     t,
			PValue:    pv,
			NGroup:    len(inGroup),
			NRest:     len(rest),
		})
	}
	return out, nil
}
