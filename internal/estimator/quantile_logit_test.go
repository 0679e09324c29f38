package estimator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantileRegressionMedianMatchesOLS(t *testing.T) {
	// Symmetric errors: the median regression and OLS share the same slope
	p := makePanel(t, 150, 6, []string{"y", "x"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		x := rng.NormFloat64()
		return map[string]float64{"x": x, "y": 1 + 2*x + 0.5*rng.NormFloat64()}
	})

	d, err := NewDesign(p, "y", []string{"x"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	med, err := QuantileRegression(d, 0.5)
	require.NoError(t, err)

	mc, ok := med.Coef("x")
	require.True(t, ok)
	assert.InDelta(t, 2.0, mc.Estimate, 0.08)
	assert.Positive(t, mc.StdErr)
	assert.Greater(t, med.R2, 0.5, "pseudo R1 should be substantial")
	assert.Equal(t, "qreg_50", med.Model)
}

func TestQuantileRegressionHeteroskedasticSlopes(t *testing.T) {
	// Error scale grows with x: upper-quantile slope exceeds lower-quantile
	p := makePanel(t, 200, 6, []string{"y", "x"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		x := rng.Float64() * 4 // positive support keeps the scale monotone
		scale := 0.2 + 0.5*x
		return map[string]float64{"x": x, "y": 1 + x + scale*rng.NormFloat64()}
	})

	d, err := NewDesign(p, "y", []string{"x"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	lo, err := QuantileRegression(d, 0.25)
	require.NoError(t, err)
	hi, err := QuantileRegression(d, 0.75)
	require.NoError(t, err)

	lc, _ := lo.Coef("x")
	hc, _ := hi.Coef("x")
	assert.Greater(t, hc.Estimate, lc.Estimate,
		"heteroskedasticity must fan out the quantile slopes")
}

func TestQuantileRegressionInvalidTau(t *testing.T) {
	p := makePanel(t, 20, 3, []string{"y", "x"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		return map[string]float64{"y": rng.NormFloat64(), "x": rng.NormFloat64()}
	})
	d, err := NewDesign(p, "y", []string{"x"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	for _, tau := range []float64{0, 1, -0.2, 1.3} {
		_, err := QuantileRegression(d, tau)
		assert.Error(t, err, "tau=%v", tau)
	}
}

func TestLogitRecoversCoefficients(t *testing.T) {
	// P(y=1) = sigmoid(-0.5 + 1.5x)
	p := makePanel(t, 400, 5, []string{"d", "x"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		x := rng.NormFloat64()
		pr := sigmoid(-0.5 + 1.5*x)
		d := 0.0
		if rng.Float64() < pr {
			d = 1
		}
		return map[string]float64{"d": d, "x": x}
	})

	d, err := NewDesign(p, "d", []string{"x"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	res, err := Logit(d)
	require.NoError(t, err)

	cc, _ := res.Coef("const")
	xc, _ := res.Coef("x")
	assert.InDelta(t, -0.5, cc.Estimate, 0.12)
	assert.InDelta(t, 1.5, xc.Estimate, 0.15)
	assert.Less(t, xc.PValue, 0.001)
	assert.Greater(t, res.Diagnostics["pseudo_r2"], 0.1)
	assert.Negative(t, res.Diagnostics["log_likelihood"])
}

func TestLogitRejectsNonBinary(t *testing.T) {
	p := makePanel(t, 30, 3, []string{"d", "x"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		return map[string]float64{"d": rng.NormFloat64(), "x": rng.NormFloat64()}
	})
	d, err := NewDesign(p, "d", []string{"x"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	_, err = Logit(d)
	assert.Error(t, err)
}

func TestLogitRejectsConstantOutcome(t *testing.T) {
	p := makePanel(t, 30, 3, []string{"d", "x"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		return map[string]float64{"d": 1, "x": rng.NormFloat64()}
	})
	d, err := NewDesign(p, "d", []string{"x"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	_, err = Logit(d)
	assert.Error(t, err)
}
