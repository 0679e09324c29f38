package operations

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"esgpanel/internal/dataset"
	"esgpanel/internal/errors"
	"esgpanel/internal/estimator"
)

// EstimateStage fits the full model battery: pooled OLS, fixed and random
// effects with the Hausman test, 2SLS, difference-in-differences with the
// event study, dynamic panel GMM, quantile regressions, the logit adoption
// model, and propensity-score matching.
type EstimateStage struct {
	deps Deps
}

// NewEstimateStage creates the estimate stage
func NewEstimateStage(deps Deps) *EstimateStage {
	return &EstimateStage{deps: deps}
}

func (s *EstimateStage) ID() string   { return "estimate" }
func (s *EstimateStage) Name() string { return "Fit model battery" }

func (s *EstimateStage) Validate(state *RunState) error {
	if state.CleanPanel() == nil {
		return errors.NewValidationError("clean_panel", "construct must run first", nil)
	}
	if state.Results() == nil {
		return errors.NewValidationError("results", "describe must run first", nil)
	}
	return nil
}

func (s *EstimateStage) Execute(ctx context.Context, state *RunState) error {
	study := s.deps.Study
	p := state.CleanPanel()
	results := state.Results()

	baseRegs := append([]string{study.KeyVar}, study.Controls...)
	dummyCols := columnsWithPrefix(p, "ind_", "prov_")

	// (1) Bivariate pooled OLS
	d, err := estimator.NewDesign(p, study.Dependent, []string{study.KeyVar},
		estimator.DesignOptions{Intercept: true})
	if err != nil {
		return err
	}
	res, err := estimator.OLS(d, estimator.SECluster)
	if err != nil {
		return errors.WrapModel("ols_bivariate", err)
	}
	res.Model = "ols_bivariate"
	results.Models = append(results.Models, res)

	// (2) Pooled OLS with controls and industry/province dummies
	d, err = estimator.NewDesign(p, study.Dependent, append(append([]string{}, baseRegs...), dummyCols...),
		estimator.DesignOptions{Intercept: true})
	if err != nil {
		return err
	}
	res, err = estimator.OLS(d, estimator.SECluster)
	if err != nil {
		return errors.WrapModel("ols_controls", err)
	}
	res.Model = "ols_controls"
	results.Models = append(results.Models, res)

	// Same design under HC1 errors, for the robustness column.
	robust, err := estimator.OLS(d.Clone(), estimator.SERobust)
	if err != nil {
		return errors.WrapModel("ols_robust", err)
	}
	robust.Model = "ols_robust"
	results.Models = append(results.Models, robust)

	// (3, 4) Firm FE and two-way FE
	feDesign, err := estimator.NewDesign(p, study.Dependent, baseRegs,
		estimator.DesignOptions{Intercept: true})
	if err != nil {
		return err
	}
	feFirm, err := estimator.FixedEffects(feDesign.Clone(), false)
	if err != nil {
		return errors.WrapModel("fe_firm", err)
	}
	results.Models = append(results.Models, feFirm)

	feTwoWay, err := estimator.FixedEffects(feDesign.Clone(), true)
	if err != nil {
		return errors.WrapModel("fe_twoway", err)
	}
	results.Models = append(results.Models, feTwoWay)

	// (5) Pillar decomposition, one two-way FE model per pillar
	for _, pillar := range study.Pillars {
		regs := append([]string{pillar}, study.Controls...)
		pd, err := estimator.NewDesign(p, study.Dependent, regs,
			estimator.DesignOptions{Intercept: true})
		if err != nil {
			return err
		}
		pres, err := estimator.FixedEffects(pd, true)
		if err != nil {
			return errors.WrapModel("fe_"+pillar, err)
		}
		pres.Model = "fe_" + pillar
		results.Models = append(results.Models, pres)
	}

	// Moderation: does state ownership bend the slope?
	if interCol := study.KeyVar + "_x_soe"; hasColumn(p, interCol) {
		regs := append([]string{study.KeyVar, interCol}, study.Controls...)
		md, err := estimator.NewDesign(p, study.Dependent, regs,
			estimator.DesignOptions{Intercept: true})
		if err != nil {
			return err
		}
		mres, err := estimator.FixedEffects(md, true)
		if err != nil {
			return errors.WrapModel("fe_moderation", err)
		}
		mres.Model = "fe_moderation"
		results.Models = append(results.Models, mres)
	}

	// Persistence: pooled OLS with the lagged dependent variable. The
	// first firm-year of each panel carries no lag and drops listwise.
	if lagCol := "l1_" + study.Dependent; hasColumn(p, lagCol) {
		regs := append([]string{lagCol}, baseRegs...)
		dd, err := estimator.NewDesign(p, study.Dependent, regs,
			estimator.DesignOptions{Intercept: true})
		if err != nil {
			return err
		}
		dres, err := estimator.OLS(dd, estimator.SECluster)
		if err != nil {
			return errors.WrapModel("ols_dynamic", err)
		}
		dres.Model = "ols_dynamic"
		results.Models = append(results.Models, dres)
	}

	// Heterogeneity: two-way FE on subsamples cut by the constructed
	// indicator columns.
	subsamples := []struct {
		model string
		col   string
		value float64
	}{
		{"fe_high_" + study.KeyVar, study.KeyVar + "_high", 1},
		{"fe_low_" + study.KeyVar, study.KeyVar + "_high", 0},
		{"fe_small", "size_q", 1},
		{"fe_large", "size_q", 4},
	}
	for _, ss := range subsamples {
		if !hasColumn(p, ss.col) {
			continue
		}
		sub, err := p.FilterEq(ss.col, ss.value)
		if err != nil {
			return errors.WrapModel(ss.model, err)
		}
		sd, err := estimator.NewDesign(sub, study.Dependent, baseRegs,
			estimator.DesignOptions{Intercept: true})
		if err != nil {
			return errors.WrapModel(ss.model, err)
		}
		sres, err := estimator.FixedEffects(sd, true)
		if err != nil {
			return errors.WrapModel(ss.model, err)
		}
		sres.Model = ss.model
		results.Models = append(results.Models, sres)
	}

	// (6) Random effects and the Hausman specification test
	re, err := estimator.RandomEffects(feDesign.Clone())
	if err != nil {
		return errors.WrapModel("re", err)
	}
	hStat, hP, hDF := estimator.Hausman(feFirm, re)
	re.SetDiagnostic("hausman_stat", hStat)
	re.SetDiagnostic("hausman_p", hP)
	re.SetDiagnostic("hausman_df", float64(hDF))
	results.Models = append(results.Models, re)
	slog.InfoContext(ctx, "hausman_test",
		slog.Float64("stat", hStat),
		slog.Float64("p_value", hP))

	// (7) 2SLS with the leave-one-out industry-year instrument
	iv, err := estimator.TwoSLS(p, study.Dependent, study.KeyVar, study.Controls,
		[]string{InstrumentCol(study.KeyVar)},
		estimator.DesignOptions{Intercept: true})
	if err != nil {
		return errors.WrapModel("iv_2sls", err)
	}
	results.Models = append(results.Models, iv)

	// (8) DiD and event study around the policy year
	did, err := estimator.DiD(p, study.Dependent, study.TreatedCol, study.Controls, study.EventYear)
	if err != nil {
		return errors.WrapModel("did", err)
	}
	results.Models = append(results.Models, did)

	evt, err := estimator.EventStudy(p, study.Dependent, study.TreatedCol, study.Controls,
		study.EventYear, study.EventWindow)
	if err != nil {
		return errors.WrapModel("event_study", err)
	}
	results.Models = append(results.Models, evt)

	// (9) Dynamic panel GMM
	gmm, err := estimator.ArellanoBond(p, study.Dependent, baseRegs, study.GMMMaxLag)
	if err != nil {
		return errors.WrapModel("gmm_diff", err)
	}
	results.Models = append(results.Models, gmm)

	// (10) Quantile regressions
	for _, tau := range study.Quantiles {
		qd, err := estimator.NewDesign(p, study.Dependent, baseRegs,
			estimator.DesignOptions{Intercept: true})
		if err != nil {
			return err
		}
		name := fmt.Sprintf("q%02d", int(math.Round(tau*100)))
		qres, err := estimator.QuantileRegression(qd, tau)
		if err != nil {
			return errors.WrapModel(name, err)
		}
		qres.Model = name
		results.Models = append(results.Models, qres)
	}

	// (11) Logit adoption model
	ld, err := estimator.NewDesign(p, study.BinaryDep, baseRegs,
		estimator.DesignOptions{Intercept: true})
	if err != nil {
		return err
	}
	logit, err := estimator.Logit(ld)
	if err != nil {
		return errors.WrapModel("logit", err)
	}
	results.Models = append(results.Models, logit)

	// (12) Propensity-score matching on the adoption indicator
	md, err := estimator.NewDesign(p, study.BinaryDep, study.Controls,
		estimator.DesignOptions{Intercept: true})
	if err != nil {
		return err
	}
	outcome, err := alignColumn(p, md, study.Dependent)
	if err != nil {
		return err
	}
	matching, err := estimator.PropensityMatch(md, outcome, study.PSMCaliper)
	if err != nil {
		return errors.WrapModel("psm", err)
	}
	results.Matching = matching

	slog.InfoContext(ctx, "models_estimated",
		slog.Int("model_count", len(results.Models)))
	return nil
}

func hasColumn(p *dataset.Panel, name string) bool {
	for _, n := range p.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// columnsWithPrefix returns panel columns carrying any of the prefixes, in
// stable sorted order.
func columnsWithPrefix(p *dataset.Panel, prefixes ...string) []string {
	var cols []string
	for _, name := range p.Names() {
		for _, prefix := range prefixes {
			if strings.HasPrefix(name, prefix) {
				cols = append(cols, name)
				break
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// alignColumn maps a panel column onto the design's surviving rows through
// the firm-year key.
func alignColumn(p *dataset.Panel, d *estimator.Design, name string) ([]float64, error) {
	values, err := p.Float(name)
	if err != nil {
		return nil, err
	}
	years, err := p.Years()
	if err != nil {
		return nil, err
	}
	firms := p.Firms()

	byKey := make(map[string]float64, len(values))
	for i := range values {
		byKey[fmt.Sprintf("%s:%d", firms[i], years[i])] = values[i]
	}

	out := make([]float64, len(d.Firms))
	for i := range d.Firms {
		v, ok := byKey[fmt.Sprintf("%s:%d", d.Firms[i], d.Years[i])]
		if !ok {
			return nil, fmt.Errorf("column %s: no value for %s in %d", name, d.Firms[i], d.Years[i])
		}
		out[i] = v
	}
	return out, nil
}
