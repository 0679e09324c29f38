package transform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWinsorizeCapsExtremes(t *testing.T) {
	// 100 values 1..100 with two gross outliers appended
	values := make([]float64, 0, 102)
	for i := 1; i <= 100; i++ {
		values = append(values, float64(i))
	}
	values = append(values, -500, 9000)

	out, lo, hi, err := Winsorize(values, Bounds{Lower: 0.01, Upper: 0.99})
	require.NoError(t, err)
	require.Len(t, out, len(values))

	assert.Less(t, lo, hi)
	for _, v := range out {
		assert.GreaterOrEqual(t, v, lo)
		assert.LessOrEqual(t, v, hi)
	}
	// Outliers are capped at the bounds, not dropped
	assert.Equal(t, lo, out[100])
	assert.Equal(t, hi, out[101])
	// Interior values are untouched
	assert.Equal(t, 50.0, out[49])
}

func TestWinsorizePreservesNaN(t *testing.T) {
	values := []float64{1, 2, math.NaN(), 3, 4, 5, 6, 7, 8, 100}
	out, _, _, err := Winsorize(values, Bounds{Lower: 0.05, Upper: 0.95})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out[2]))
}

func TestWinsorizeInvalidBounds(t *testing.T) {
	tests := []struct {
		name   string
		bounds Bounds
	}{
		{"inverted", Bounds{Lower: 0.9, Upper: 0.1}},
		{"negative lower", Bounds{Lower: -0.1, Upper: 0.9}},
		{"upper above one", Bounds{Lower: 0.1, Upper: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := Winsorize([]float64{1, 2, 3}, tt.bounds)
			assert.Error(t, err)
		})
	}
}

func TestWinsorizeAllNaN(t *testing.T) {
	_, _, _, err := Winsorize([]float64{math.NaN(), math.NaN()}, Bounds{Lower: 0.01, Upper: 0.99})
	assert.Error(t, err)
}

func TestStandardize(t *testing.T) {
	values := []float64{2, 4, 6, 8, math.NaN(), 10}
	out, err := Standardize(values)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(out[4]))

	// Observed z-scores must have mean 0 and sd 1
	var sum, sumSq float64
	n := 0
	for _, v := range out {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	mean := sum / float64(n)
	for _, v := range out {
		if math.IsNaN(v) {
			continue
		}
		sumSq += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(sumSq / float64(n-1))

	assert.InDelta(t, 0.0, mean, 1e-10)
	assert.InDelta(t, 1.0, sd, 1e-10)
}

func TestStandardizeConstantColumn(t *testing.T) {
	_, err := Standardize([]float64{3, 3, 3, 3})
	assert.Error(t, err)
}

func TestInteraction(t *testing.T) {
	out, err := Interaction([]float64{1, 2, math.NaN()}, []float64{3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, 3.0, out[0])
	assert.Equal(t, 8.0, out[1])
	assert.True(t, math.IsNaN(out[2]))

	_, err = Interaction([]float64{1}, []float64{1, 2})
	assert.Error(t, err)
}

func TestQuartileBins(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i + 1)
	}
	bins, err := QuartileBins(values)
	require.NoError(t, err)

	counts := map[float64]int{}
	for _, b := range bins {
		counts[b]++
	}
	// Quartiles partition 1..100 evenly
	assert.Equal(t, 25, counts[1])
	assert.Equal(t, 25, counts[2])
	assert.Equal(t, 25, counts[3])
	assert.Equal(t, 25, counts[4])

	assert.Equal(t, 1.0, bins[0])
	assert.Equal(t, 4.0, bins[99])
}

func TestAboveMedian(t *testing.T) {
	values := []float64{1, 2, 3, 4, math.NaN()}
	out, err := AboveMedian(values)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out[0])
	assert.Equal(t, 0.0, out[1])
	assert.Equal(t, 1.0, out[2])
	assert.Equal(t, 1.0, out[3])
	assert.True(t, math.IsNaN(out[4]))
}

func TestDummies(t *testing.T) {
	labels := []string{"C39", "K70", "C39", "", "B 06"}
	cols, names, err := Dummies(labels, "ind")
	require.NoError(t, err)

	assert.Equal(t, []string{"ind_b_06", "ind_c39", "ind_k70"}, names)

	c39 := cols["ind_c39"]
	assert.Equal(t, 1.0, c39[0])
	assert.Equal(t, 0.0, c39[1])
	assert.Equal(t, 1.0, c39[2])
	assert.True(t, math.IsNaN(c39[3]), "empty label must stay missing")

	// Each non-missing row is one-hot across the dummy set
	for i := range labels {
		if labels[i] == "" {
			continue
		}
		var total float64
		for _, name := range names {
			total += cols[name][i]
		}
		assert.Equal(t, 1.0, total, "row %d", i)
	}
}

func TestDummiesSingleLevel(t *testing.T) {
	_, _, err := Dummies([]string{"a", "a", "a"}, "x")
	assert.Error(t, err)
}
