package estimator

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esgpanel/internal/dataset"
	apperrors "esgpanel/internal/errors"
)

// rowFunc generates the numeric columns of one firm-year observation.
type rowFunc func(firm, year int, rng *rand.Rand) map[string]float64

// makePanel builds a balanced synthetic panel with deterministic noise.
func makePanel(t *testing.T, nFirms, nYears int, cols []string, gen rowFunc) *dataset.Panel {
	t.Helper()

	rng := rand.New(rand.NewSource(42))
	records := [][]string{append([]string{"stkcd", "year", "industry"}, cols...)}
	for f := 0; f < nFirms; f++ {
		industry := fmt.Sprintf("IND%d", f%5)
		for y := 0; y < nYears; y++ {
			year := 2015 + y
			vals := gen(f, year, rng)
			row := []string{fmt.Sprintf("%06d", f), strconv.Itoa(year), industry}
			for _, c := range cols {
				row = append(row, strconv.FormatFloat(vals[c], 'g', -1, 64))
			}
			records = append(records, row)
		}
	}

	p, err := dataset.FromRecords(records, "stkcd", "year", []string{"industry"})
	require.NoError(t, err)
	return p
}

func TestOLSRecoversCoefficients(t *testing.T) {
	// y = 1 + 2x + e
	p := makePanel(t, 100, 5, []string{"y", "x"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		x := rng.NormFloat64()
		return map[string]float64{"x": x, "y": 1 + 2*x + 0.1*rng.NormFloat64()}
	})

	d, err := NewDesign(p, "y", []string{"x"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	res, err := OLS(d, SEClassical)
	require.NoError(t, err)

	constCoef, ok := res.Coef("const")
	require.True(t, ok)
	xCoef, ok := res.Coef("x")
	require.True(t, ok)

	assert.InDelta(t, 1.0, constCoef.Estimate, 0.05)
	assert.InDelta(t, 2.0, xCoef.Estimate, 0.05)
	assert.Greater(t, res.R2, 0.99)
	assert.Equal(t, 500, res.N)
	assert.Less(t, xCoef.PValue, 0.001)
	assert.Positive(t, xCoef.StdErr)
}

func TestOLSSETypesAgreeUnderHomoskedasticity(t *testing.T) {
	p := makePanel(t, 80, 6, []string{"y", "x"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		x := rng.NormFloat64()
		return map[string]float64{"x": x, "y": 0.5 + x + rng.NormFloat64()}
	})

	d, err := NewDesign(p, "y", []string{"x"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	classical, err := OLS(d, SEClassical)
	require.NoError(t, err)
	robust, err := OLS(d, SERobust)
	require.NoError(t, err)
	cluster, err := OLS(d, SECluster)
	require.NoError(t, err)

	cc, _ := classical.Coef("x")
	rc, _ := robust.Coef("x")
	kc, _ := cluster.Coef("x")

	// Identical point estimates, comparable SEs with iid errors
	assert.Equal(t, cc.Estimate, rc.Estimate)
	assert.Equal(t, cc.Estimate, kc.Estimate)
	assert.InDelta(t, cc.StdErr, rc.StdErr, cc.StdErr*0.2)
	assert.InDelta(t, cc.StdErr, kc.StdErr, cc.StdErr*0.3)
}

func TestOLSSingularMatrix(t *testing.T) {
	p := makePanel(t, 30, 4, []string{"y", "x", "x2"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		x := rng.NormFloat64()
		return map[string]float64{"x": x, "x2": 2 * x, "y": x + rng.NormFloat64()}
	})

	d, err := NewDesign(p, "y", []string{"x", "x2"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	_, err = OLS(d, SEClassical)
	assert.ErrorIs(t, err, apperrors.ErrSingularMatrix)
}

func TestNewDesignListwiseDeletion(t *testing.T) {
	records := [][]string{
		{"stkcd", "year", "y", "x"},
		{"a", "2020", "1.0", "2.0"},
		{"a", "2021", "", "3.0"},
		{"b", "2020", "2.0", ""},
		{"b", "2021", "3.0", "4.0"},
		{"c", "2020", "4.0", "5.0"},
		{"c", "2021", "5.0", "6.0"},
	}
	p, err := dataset.FromRecords(records, "stkcd", "year", nil)
	require.NoError(t, err)

	d, err := NewDesign(p, "y", []string{"x"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	assert.Equal(t, 4, d.N(), "rows with missing y or x are dropped")
	assert.Equal(t, []string{"const", "x"}, d.Names)
	assert.Equal(t, 3, d.NFirms())
}

func TestNewDesignInsufficientData(t *testing.T) {
	records := [][]string{
		{"stkcd", "year", "y", "x"},
		{"a", "2020", "1.0", "2.0"},
		{"b", "2020", "2.0", "3.0"},
	}
	p, err := dataset.FromRecords(records, "stkcd", "year", nil)
	require.NoError(t, err)

	_, err = NewDesign(p, "y", []string{"x"}, DesignOptions{Intercept: true})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)
}

func TestFixedEffectsRemovesFirmHeterogeneity(t *testing.T) {
	// Firm effect correlated with x: pooled OLS is biased, FE is not
	p := makePanel(t, 120, 6, []string{"y", "x"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		alpha := float64(f%10) - 4.5
		x := 0.5*alpha + rng.NormFloat64()
		return map[string]float64{"x": x, "y": alpha + 1.5*x + 0.2*rng.NormFloat64()}
	})

	d, err := NewDesign(p, "y", []string{"x"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	pooled, err := OLS(d, SEClassical)
	require.NoError(t, err)
	fe, err := FixedEffects(d, false)
	require.NoError(t, err)

	pc, _ := pooled.Coef("x")
	fc, ok := fe.Coef("x")
	require.True(t, ok)

	assert.InDelta(t, 1.5, fc.Estimate, 0.05, "within estimator recovers the slope")
	assert.Greater(t, math.Abs(pc.Estimate-1.5), math.Abs(fc.Estimate-1.5),
		"pooled OLS must be more biased than FE")
	assert.Equal(t, "fe_firm", fe.Model)
	assert.Equal(t, 120, fe.NGroups)

	_, hasConst := fe.Coef("const")
	assert.False(t, hasConst, "demeaning absorbs the constant")
}

func TestFixedEffectsAbsorbsFirmConstantRegressor(t *testing.T) {
	// soe never varies within firm, so the within transform zeroes its
	// column; the fit must drop it instead of failing on a singular X'X.
	p := makePanel(t, 90, 6, []string{"y", "x", "soe"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		soe := float64(f % 2)
		x := rng.NormFloat64()
		return map[string]float64{
			"x": x, "soe": soe,
			"y": 0.7*soe + 1.5*x + float64(f%5) + 0.2*rng.NormFloat64(),
		}
	})

	d, err := NewDesign(p, "y", []string{"x", "soe"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	fe, err := FixedEffects(d, false)
	require.NoError(t, err)

	fc, ok := fe.Coef("x")
	require.True(t, ok)
	assert.InDelta(t, 1.5, fc.Estimate, 0.05)

	_, hasSOE := fe.Coef("soe")
	assert.False(t, hasSOE, "firm-constant regressor is absorbed")
}

func TestTwoWayFixedEffects(t *testing.T) {
	// Firm and year effects both present
	p := makePanel(t, 100, 8, []string{"y", "x"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		alpha := float64(f % 7)
		gamma := float64(y-2015) * 0.8
		x := rng.NormFloat64()
		return map[string]float64{"x": x, "y": alpha + gamma + 2*x + 0.3*rng.NormFloat64()}
	})

	d, err := NewDesign(p, "y", []string{"x"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	fe, err := FixedEffects(d, true)
	require.NoError(t, err)

	fc, ok := fe.Coef("x")
	require.True(t, ok)
	assert.InDelta(t, 2.0, fc.Estimate, 0.05)
	assert.Equal(t, "fe_twoway", fe.Model)
}

func TestRandomEffects(t *testing.T) {
	// Firm effect uncorrelated with x: RE is consistent and more precise
	p := makePanel(t, 150, 5, []string{"y", "x"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		alpha := float64(f%9)*0.5 - 2
		x := rng.NormFloat64()
		return map[string]float64{"x": x, "y": 1 + alpha + 1.2*x + 0.3*rng.NormFloat64()}
	})

	d, err := NewDesign(p, "y", []string{"x"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	re, err := RandomEffects(d)
	require.NoError(t, err)

	rc, ok := re.Coef("x")
	require.True(t, ok)
	assert.InDelta(t, 1.2, rc.Estimate, 0.05)
	assert.Greater(t, re.Diagnostics["sigma_u2"], 0.0, "firm variance component detected")
	assert.Greater(t, re.Diagnostics["theta_mean"], 0.0)

	_, hasConst := re.Coef("const")
	assert.True(t, hasConst, "RE keeps the intercept")
}

func TestRandomEffectsRequiresIntercept(t *testing.T) {
	p := makePanel(t, 30, 4, []string{"y", "x"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		x := rng.NormFloat64()
		return map[string]float64{"x": x, "y": x}
	})
	d, err := NewDesign(p, "y", []string{"x"}, DesignOptions{Intercept: false})
	require.NoError(t, err)

	_, err = RandomEffects(d)
	assert.Error(t, err)
}

func TestHausman(t *testing.T) {
	// Correlated firm effects: FE and RE diverge, Hausman should be large
	p := makePanel(t, 120, 6, []string{"y", "x"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		alpha := float64(f%10) - 4.5
		x := 0.6*alpha + rng.NormFloat64()
		return map[string]float64{"x": x, "y": alpha + 1.5*x + 0.2*rng.NormFloat64()}
	})

	d, err := NewDesign(p, "y", []string{"x"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	fe, err := FixedEffects(d, false)
	require.NoError(t, err)
	re, err := RandomEffects(d)
	require.NoError(t, err)

	stat, p2, df := Hausman(fe, re)
	if math.IsNaN(stat) {
		t.Skip("variance difference not positive; diagonal Hausman undefined on this draw")
	}
	assert.Equal(t, 1, df)
	assert.GreaterOrEqual(t, stat, 0.0)
	assert.GreaterOrEqual(t, p2, 0.0)
	assert.LessOrEqual(t, p2, 1.0)
}

func TestWithinRejectsNoDimensions(t *testing.T) {
	p := makePanel(t, 10, 3, []string{"y", "x"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		return map[string]float64{"x": rng.NormFloat64(), "y": rng.NormFloat64()}
	})
	d, err := NewDesign(p, "y", []string{"x"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	_, err = Within(d, false, false)
	assert.Error(t, err)
}
