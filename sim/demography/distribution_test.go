package demography

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func sampleN(t *testing.T, spec DistSpec, n int) []float64 {
	t.Helper()
	s, err := NewValueSampler(spec)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(42, 0))
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Sample(rng)
	}
	return out
}

func TestValueSampler_Moments(t *testing.T) {
	tests := []struct {
		name     string
		spec     DistSpec
		wantMean float64
		tol      float64
	}{
		{"beta", DistSpec{Type: "beta", Params: map[string]float64{"alpha": 2, "beta": 5}}, 2.0 / 7, 0.01},
		{"uniform", DistSpec{Type: "uniform", Params: map[string]float64{"min": 0.5, "max": 1}}, 0.75, 0.01},
		{"normal", DistSpec{Type: "normal", Params: map[string]float64{"mean": 50, "std_dev": 10}}, 50, 0.5},
		{"constant", DistSpec{Type: "constant", Params: map[string]float64{"value": 3}}, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN 20000 draws
			xs := sampleN(t, tt.spec, 20000)

			// THEN the sample mean is close to the distribution mean
			assert.InDelta(t, tt.wantMean, stat.Mean(xs, nil), tt.tol)
		})
	}
}

func TestValueSampler_Clamped(t *testing.T) {
	for _, spec := range []DistSpec{
		{Type: "normal", Params: map[string]float64{"mean": 50, "std_dev": 40, "min": 10, "max": 100}},
		{Type: "lognormal", Params: map[string]float64{"mu": 3, "sigma": 1, "min": 10, "max": 100}},
	} {
		t.Run(spec.Type, func(t *testing.T) {
			for _, x := range sampleN(t, spec, 5000) {
				require.GreaterOrEqual(t, x, 10.0)
				require.LessOrEqual(t, x, 100.0)
			}
		})
	}
}

func TestValueSampler_BetaStaysInUnitInterval(t *testing.T) {
	for _, x := range sampleN(t, DistSpec{Type: "beta", Params: map[string]float64{"alpha": 0.5, "beta": 0.5}}, 5000) {
		require.GreaterOrEqual(t, x, 0.0)
		require.LessOrEqual(t, x, 1.0)
	}
}

func TestValueSampler_SameSeedSameDraws(t *testing.T) {
	spec := DistSpec{Type: "lognormal", Params: map[string]float64{"mu": 1, "sigma": 0.5}}
	assert.Equal(t, sampleN(t, spec, 50), sampleN(t, spec, 50))
}

func TestNewValueSampler_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec DistSpec
	}{
		{"unknown type", DistSpec{Type: "weibull"}},
		{"missing beta param", DistSpec{Type: "beta", Params: map[string]float64{"alpha": 1}}},
		{"non-positive alpha", DistSpec{Type: "beta", Params: map[string]float64{"alpha": 0, "beta": 1}}},
		{"inverted uniform", DistSpec{Type: "uniform", Params: map[string]float64{"min": 2, "max": 1}}},
		{"zero std_dev", DistSpec{Type: "normal", Params: map[string]float64{"mean": 1, "std_dev": 0}}},
		{"inverted clamp", DistSpec{Type: "normal", Params: map[string]float64{"mean": 1, "std_dev": 1, "min": 5, "max": 2}}},
		{"zero sigma", DistSpec{Type: "lognormal", Params: map[string]float64{"mu": 1, "sigma": 0}}},
		{"missing value", DistSpec{Type: "constant"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewValueSampler(tt.spec)
			assert.Error(t, err)
		})
	}
}
