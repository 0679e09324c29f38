package estimator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropensityMatchRecoversATT(t *testing.T) {
	const effect = 1.0

	// Selection on an observable: high-w firms are more likely treated, and
	// w also raises the outcome, so the naive difference overstates the ATT.
	p := makePanel(t, 300, 4, []string{"d", "w", "y"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		w := rng.NormFloat64()
		pr := sigmoid(0.8 * w)
		d := 0.0
		if rng.Float64() < pr {
			d = 1
		}
		return map[string]float64{
			"d": d,
			"w": w,
			"y": 0.5 + 0.9*w + effect*d + 0.3*rng.NormFloat64(),
		}
	})

	design, err := NewDesign(p, "d", []string{"w"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	outcome := designOutcome(t, p, design)

	res, err := PropensityMatch(design, outcome, 0.05)
	require.NoError(t, err)

	assert.InDelta(t, effect, res.ATT, 0.1)
	assert.Positive(t, res.ATTStdErr)
	assert.Greater(t, res.NMatched, 100)

	attCoef, ok := res.Coef("att")
	require.True(t, ok)
	assert.Equal(t, res.ATT, attCoef.Estimate)
	assert.Less(t, attCoef.PValue, 0.001)

	// Matching must move the covariate toward balance
	require.Len(t, res.Balance, 1)
	b := res.Balance[0]
	assert.Equal(t, "w", b.Variable)
	assert.Less(t, math.Abs(b.SMDAfter), math.Abs(b.SMDBefore),
		"post-match SMD should shrink")
	assert.Less(t, math.Abs(b.SMDAfter), 0.1, "post-match balance threshold")

	// The naive treated-control gap overstates the effect
	naive := naiveGap(design, outcome)
	assert.Greater(t, naive, res.ATT)
}

func TestPropensityMatchCaliperTooTight(t *testing.T) {
	p := makePanel(t, 40, 3, []string{"d", "w", "y"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		w := rng.NormFloat64()
		d := 0.0
		if w > 1.2 { // strong separation leaves no close matches
			d = 1
		}
		return map[string]float64{"d": d, "w": w, "y": w + d}
	})

	design, err := NewDesign(p, "d", []string{"w"}, DesignOptions{Intercept: true})
	require.NoError(t, err)
	outcome := designOutcome(t, p, design)

	_, err = PropensityMatch(design, outcome, 1e-9)
	assert.Error(t, err)
}

func TestPropensityMatchRejectsBadInputs(t *testing.T) {
	p := makePanel(t, 30, 3, []string{"d", "w", "y"}, func(f, y int, rng *rand.Rand) map[string]float64 {
		return map[string]float64{"d": float64(f % 2), "w": rng.NormFloat64(), "y": rng.NormFloat64()}
	})
	design, err := NewDesign(p, "d", []string{"w"}, DesignOptions{Intercept: true})
	require.NoError(t, err)

	_, err = PropensityMatch(design, []float64{1, 2}, 0.05)
	assert.Error(t, err, "outcome length mismatch")

	outcome := designOutcome(t, p, design)
	_, err = PropensityMatch(design, outcome, 0)
	assert.Error(t, err, "non-positive caliper")
}

// designOutcome aligns the y column with the design's surviving rows by
// re-deriving it from the panel through the same design machinery.
func designOutcome(t *testing.T, p interface {
	Float(string) ([]float64, error)
}, design *Design) []float64 {
	t.Helper()

	y, err := p.Float("y")
	require.NoError(t, err)

	// The matching designs in these tests have no missing cells, so rows
	// align one-to-one.
	require.Len(t, y, design.N())
	return y
}

// naiveGap is the unmatched treated-minus-control outcome difference.
func naiveGap(d *Design, outcome []float64) float64 {
	var st, sc float64
	var nt, nc int
	for i, treat := range d.Y {
		if treat == 1 {
			st += outcome[i]
			nt++
		} else {
			sc += outcome[i]
			nc++
		}
	}
	return st/float64(nt) - sc/float64(nc)
}
