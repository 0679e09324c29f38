package estimator

import (
	"fmt"
	"math"
	"sort"

	"esgpanel/internal/dataset"
)

// DiD fits the difference-in-differences specification
//
//	y ~ treated×post + controls, firm and year FE, cluster(firm) SE
//
// around the given event year. The treated and post main effects are
// absorbed by the fixed effects; the interaction carries the policy effect.
func DiD(p *dataset.Panel, dep, treatedCol string, controls []string, eventYear int) (*Result, error) {
	treated, err := p.Float(treatedCol)
	if err != nil {
		return nil, err
	}
	years, err := p.Years()
	if err != nil {
		return nil, err
	}

	inter := make([]float64, len(treated))
	for i := range treated {
		if math.IsNaN(treated[i]) {
			inter[i] = math.NaN()
			continue
		}
		if years[i] >= eventYear && treated[i] == 1 {
			inter[i] = 1
		}
	}

	regressors := append([]string{"treated_post"}, controls...)
	d, err := NewDesign(p, dep, regressors, DesignOptions{
		Intercept: true,
		Extra:     map[string][]float64{"treated_post": inter},
	})
	if err != nil {
		return nil, err
	}

	res, err := FixedEffects(d, true)
	if err != nil {
		return nil, err
	}
	res.Model = "did"
	res.Method = fmt.Sprintf("DiD around %d, firm+year FE, cluster(firm) SE", eventYear)
	return res, nil
}

// EventStudy fits the dynamic DiD specification with relative-event-year
// indicators treated×1[t-eventYear=τ] for τ in [-window, window], binning
// the endpoints and omitting τ=-1 as the reference period. Flat pre-period
// coefficients support the parallel trends assumption behind DiD.
func EventStudy(p *dataset.Panel, dep, treatedCol string, controls []string, eventYear, window int) (*Result, error) {
	if window < 1 {
		return nil, fmt.Errorf("event window must be at least 1, got %d", window)
	}

	treated, err := p.Float(treatedCol)
	if err != nil {
		return nil, err
	}
	years, err := p.Years()
	if err != nil {
		return nil, err
	}

	// Relative-time indicator columns, reference period τ=-1 omitted
	taus := make([]int, 0, 2*window)
	for tau := -window; tau <= window; tau++ {
		if tau == -1 {
			continue
		}
		taus = append(taus, tau)
	}
	sort.Ints(taus)

	extra := make(map[string][]float64, len(taus))
	names := make([]string, 0, len(taus))
	for _, tau := range taus {
		name := eventTermName(tau)
		names = append(names, name)
		col := make([]float64, len(treated))
		for i := range treated {
			if math.IsNaN(treated[i]) {
				col[i] = math.NaN()
				continue
			}
			if treated[i] != 1 {
				continue
			}
			rel := years[i] - eventYear
			// Endpoint binning keeps far years from dropping out
			if rel < -window {
				rel = -window
			}
			if rel > window {
				rel = window
			}
			if rel == tau {
				col[i] = 1
			}
		}
		extra[name] = col
	}

	regressors := append(append([]string{}, names...), controls...)
	d, err := NewDesign(p, dep, regressors, DesignOptions{Intercept: true, Extra: extra})
	if err != nil {
		return nil, err
	}

	res, err := FixedEffects(d, true)
	if err != nil {
		return nil, err
	}
	res.Model = "event_study"
	res.Method = fmt.Sprintf("Event study around %d (window ±%d, ref τ=-1), firm+year FE", eventYear, window)
	return res, nil
}

// eventTermName maps a relative year to a column name: evt_m3 .. evt_p3.
func eventTermName(tau int) string {
	if tau < 0 {
		return fmt.Sprintf("evt_m%d", -tau)
	}
	return fmt.Sprintf("evt_p%d", tau)
}
