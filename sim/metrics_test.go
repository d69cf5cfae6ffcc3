package sim

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeMetrics_Peaks(t *testing.T) {
	// GIVEN a rising then falling epidemic curve
	snaps := []Snapshot{
		{Step: 1, Population: 100, TrueInfected: 5, ObservedInfected: 1, Arrivals: 2},
		{Step: 2, Population: 102, TrueInfected: 20, ObservedInfected: 4, Arrivals: 2, CumulativeConfirmed: 5},
		{Step: 3, Population: 104, TrueInfected: 12, ObservedInfected: 6, Arrivals: 2, TrueDead: 3, CumulativeConfirmed: 11},
	}

	// WHEN folded
	m := ComputeMetrics(snaps, 22)

	// THEN peaks, totals and the final state are reported
	assert.Equal(t, Metrics{
		Steps:               3,
		FinalPopulation:     104,
		PeakInfected:        20,
		PeakInfectedStep:    2,
		PeakObserved:        6,
		PeakObservedStep:    3,
		TotalDead:           3,
		TotalArrivals:       6,
		CumulativeConfirmed: 11,
		EverInfected:        22,
	}, m)
	assert.InDelta(t, 0.5, m.AscertainmentRatio(), 1e-12)
}

func TestMetrics_AscertainmentRatio_NoInfections(t *testing.T) {
	assert.Equal(t, 0.0, ComputeMetrics(nil, 0).AscertainmentRatio())
}

func TestMetrics_Print(t *testing.T) {
	var buf bytes.Buffer
	Metrics{Steps: 10, PeakInfected: 7, PeakInfectedStep: 4}.Print(&buf)

	out := buf.String()
	assert.Contains(t, out, "=== Simulation Metrics ===")
	assert.Contains(t, out, "Peak Infected (true) : 7 at step 4")
}
