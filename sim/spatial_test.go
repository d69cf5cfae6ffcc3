package sim

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSources(n int, bounds Bounds, seed uint64) []InfectiousSource {
	rng := rand.New(rand.NewPCG(seed, 0))
	sources := make([]InfectiousSource, n)
	for i := range sources {
		sources[i] = InfectiousSource{
			ID:       IndividualID(i),
			Location: Location{X: rng.Float64() * bounds.XMax, Y: rng.Float64() * bounds.YMax},
			Sigma:    150,
			Radius:   50,
			Weight:   0.5,
		}
	}
	return sources
}

func TestSpatialIndex_GridMatchesFullScan(t *testing.T) {
	// GIVEN 200 sources indexed both exactly and on a grid
	bounds := Bounds{XMax: 10000, YMax: 10000}
	const threshold = 1e-9
	sources := randomSources(200, bounds, 1)

	exact := NewSpatialIndex(bounds, 0, 0)
	exact.Rebuild(sources)
	grid := NewSpatialIndex(bounds, threshold, 64)
	grid.Rebuild(sources)

	require.True(t, exact.FullScan())
	require.False(t, grid.FullScan(), "grid index expected for 200 sources")
	assert.Greater(t, grid.CellSize(), 0.0)

	// WHEN both are queried at the same points
	rng := rand.New(rand.NewPCG(2, 0))
	for i := 0; i < 500; i++ {
		l := Location{X: rng.Float64() * bounds.XMax, Y: rng.Float64() * bounds.YMax}

		// THEN they agree up to the skipped negligible contributions
		assert.InDelta(t, exact.Sum(l), grid.Sum(l), float64(len(sources))*threshold, "query %s", l)
	}
}

func TestSpatialIndex_FewSources_FallsBackToFullScan(t *testing.T) {
	bounds := Bounds{XMax: 10000, YMax: 10000}
	ix := NewSpatialIndex(bounds, 1e-9, 64)
	ix.Rebuild(randomSources(10, bounds, 3))
	assert.True(t, ix.FullScan())
	assert.Equal(t, 0.0, ix.CellSize())
	assert.Equal(t, 10, ix.Len())
}

func TestSpatialIndex_WideKernel_FallsBackToFullScan(t *testing.T) {
	// GIVEN kernels whose cutoff spans more than half the world
	bounds := Bounds{XMax: 1000, YMax: 1000}
	sources := randomSources(100, bounds, 4)
	for i := range sources {
		sources[i].Sigma = 2000
	}
	ix := NewSpatialIndex(bounds, 1e-9, 0)

	// WHEN rebuilt
	ix.Rebuild(sources)

	// THEN the grid is skipped
	assert.True(t, ix.FullScan())
}

func TestSpatialIndex_RebuildEmpty_SumsToZero(t *testing.T) {
	bounds := Bounds{XMax: 100, YMax: 100}
	ix := NewSpatialIndex(bounds, 1e-9, 0)
	ix.Rebuild(randomSources(100, bounds, 5))
	ix.Rebuild(nil)
	assert.Equal(t, 0, ix.Len())
	assert.Equal(t, 0.0, ix.Sum(Location{X: 50, Y: 50}))
}

func TestSpatialIndex_NonFiniteWeight_KeepsFullScan(t *testing.T) {
	// GIVEN enough sources for the grid, all with a NaN weight
	bounds := Bounds{XMax: 2000, YMax: 2000}
	sources := randomSources(100, bounds, 6)
	for i := range sources {
		sources[i].Weight = math.NaN()
	}
	ix := NewSpatialIndex(bounds, 1e-9, 64)

	// WHEN rebuilt and queried
	ix.Rebuild(sources)

	// THEN the grid is skipped and the NaN reaches the caller instead of 0
	assert.True(t, ix.FullScan())
	assert.True(t, math.IsNaN(ix.Sum(Location{X: 1000, Y: 1000})))
}

func TestInfectiousSource_Cutoff(t *testing.T) {
	s := InfectiousSource{Sigma: 10, Weight: 1}
	threshold := 1e-6
	d := s.cutoff(threshold)
	require.Greater(t, d, 0.0)
	assert.InDelta(t, threshold, s.contribution(d), 1e-12)
	assert.Less(t, s.contribution(d*1.01), threshold)

	weak := InfectiousSource{Sigma: 10, Weight: 1e-9}
	assert.Equal(t, 0.0, weak.cutoff(threshold))
}

func BenchmarkSpatialIndex_Sum(b *testing.B) {
	bounds := Bounds{XMax: 10000, YMax: 10000}
	ix := NewSpatialIndex(bounds, 1e-9, 64)
	ix.Rebuild(randomSources(2000, bounds, 1))
	l := Location{X: 5000, Y: 5000}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.Sum(l)
	}
}

func BenchmarkSpatialIndex_Rebuild(b *testing.B) {
	bounds := Bounds{XMax: 10000, YMax: 10000}
	ix := NewSpatialIndex(bounds, 1e-9, 64)
	sources := randomSources(2000, bounds, 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.Rebuild(sources)
	}
}
