package estimator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoSLSCorrectsEndogeneityBias(t *testing.T) {
	// x is endogenous: it loads on the same shock u that drives y.
	// z is a clean instrument: relevant for x, excluded from y.
	p := makePanel(t, 200, 5, []string{"y", "x", "z", "w"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		u := rng.NormFloat64()
		z := rng.NormFloat64()
		w := rng.NormFloat64()
		x := 1.0*z + 0.8*u + 0.3*rng.NormFloat64()
		yv := 2.0*x + 0.5*w + u
		return map[string]float64{"y": yv, "x": x, "z": z, "w": w}
	})

	// OLS is biased upward by the shared shock
	d, err := NewDesign(p, "y", []string{"x", "w"}, DesignOptions{Intercept: true})
	require.NoError(t, err)
	ols, err := OLS(d, SEClassical)
	require.NoError(t, err)
	oc, _ := ols.Coef("x")
	assert.Greater(t, oc.Estimate, 2.2, "OLS should be visibly biased")

	// 2SLS recovers the structural coefficient
	iv, err := TwoSLS(p, "y", "x", []string{"w"}, []string{"z"}, DesignOptions{})
	require.NoError(t, err)

	xc, ok := iv.Coef("x")
	require.True(t, ok)
	assert.InDelta(t, 2.0, xc.Estimate, 0.15)
	assert.Less(t, math.Abs(xc.Estimate-2.0), math.Abs(oc.Estimate-2.0))

	wc, ok := iv.Coef("w")
	require.True(t, ok)
	assert.InDelta(t, 0.5, wc.Estimate, 0.15)

	// Fit is judged on structural residuals with actual x: u is the only
	// noise left, so R2 is high. The second-stage regression on fitted x
	// explains far less of y and would report well under this.
	assert.Greater(t, iv.R2, 0.85)
	assert.Less(t, iv.AdjR2, iv.R2)

	assert.Greater(t, iv.Diagnostics["first_stage_f"], 10.0, "instrument must be strong")
	assert.Less(t, iv.Diagnostics["first_stage_f_p"], 0.001)
	assert.Equal(t, "iv_2sls", iv.Model)
}

func TestTwoSLSRequiresInstrument(t *testing.T) {
	p := makePanel(t, 20, 3, []string{"y", "x"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		return map[string]float64{"y": rng.NormFloat64(), "x": rng.NormFloat64()}
	})
	_, err := TwoSLS(p, "y", "x", nil, nil, DesignOptions{})
	assert.Error(t, err)
}

func TestDiDRecoversTreatmentEffect(t *testing.T) {
	const effect = 0.8
	p := makePanel(t, 150, 8, []string{"y", "x", "treated"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		treated := 0.0
		if f%2 == 0 {
			treated = 1
		}
		alpha := float64(f%6) * 0.4
		gamma := float64(y-2015) * 0.2
		x := rng.NormFloat64()
		yv := alpha + gamma + 0.5*x + 0.3*rng.NormFloat64()
		if treated == 1 && y >= 2019 {
			yv += effect
		}
		return map[string]float64{"y": yv, "x": x, "treated": treated}
	})

	res, err := DiD(p, "y", "treated", []string{"x"}, 2019)
	require.NoError(t, err)

	tc, ok := res.Coef("treated_post")
	require.True(t, ok)
	assert.InDelta(t, effect, tc.Estimate, 0.08)
	assert.Less(t, tc.PValue, 0.01)
	assert.Equal(t, "did", res.Model)
}

func TestEventStudyPreTrendsFlat(t *testing.T) {
	const effect = 1.0
	p := makePanel(t, 150, 8, []string{"y", "treated"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		treated := 0.0
		if f%2 == 0 {
			treated = 1
		}
		alpha := float64(f % 4)
		gamma := float64(y-2015) * 0.3
		yv := alpha + gamma + 0.25*rng.NormFloat64()
		if treated == 1 && y >= 2019 {
			yv += effect
		}
		return map[string]float64{"y": yv, "treated": treated}
	})

	res, err := EventStudy(p, "y", "treated", nil, 2019, 3)
	require.NoError(t, err)

	// Pre-period coefficients near zero (parallel trends hold by construction)
	for _, name := range []string{"evt_m3", "evt_m2"} {
		c, ok := res.Coef(name)
		require.True(t, ok, name)
		assert.InDelta(t, 0.0, c.Estimate, 0.1, name)
	}
	// Post-period coefficients near the effect
	for _, name := range []string{"evt_p0", "evt_p1", "evt_p2"} {
		c, ok := res.Coef(name)
		require.True(t, ok, name)
		assert.InDelta(t, effect, c.Estimate, 0.12, name)
	}

	_, hasRef := res.Coef("evt_m1")
	assert.False(t, hasRef, "reference period must be omitted")
}

func TestEventStudyRejectsBadWindow(t *testing.T) {
	p := makePanel(t, 10, 3, []string{"y", "treated"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		return map[string]float64{"y": rng.NormFloat64(), "treated": float64(f % 2)}
	})
	_, err := EventStudy(p, "y", "treated", nil, 2016, 0)
	assert.Error(t, err)
}
