package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestImmigration(cfg Config, arrivals ArrivalProcess) *immigration {
	return &immigration{
		cfg:       cfg.Immigration,
		bounds:    cfg.World.Bounds,
		locations: len(cfg.Transport.KeyLocations),
		drawer:    newTestDrawer(cfg),
		arrivals:  arrivals,
		rng:       NewPartitionedRNG(NewSimulationKey(3)),
	}
}

func TestImmigration_Arrive_AssignsConsecutiveIDs(t *testing.T) {
	cfg := newTestConfig(0, 0)
	im := newTestImmigration(cfg, FixedArrivals(3))

	got, err := im.arrive(4, 10)

	require.NoError(t, err)
	require.Len(t, got, 3)
	for k, ind := range got {
		assert.Equal(t, IndividualID(10+k), ind.ID)
		assert.Equal(t, StateSusceptible, ind.State)
		assert.True(t, cfg.World.Bounds.Contains(ind.Location))
	}
}

func TestImmigration_Arrive_RejectsIDsBeyondStreamKeys(t *testing.T) {
	// GIVEN a population one short of the id limit
	cfg := newTestConfig(0, 0)
	im := newTestImmigration(cfg, FixedArrivals(2))

	// WHEN two individuals arrive
	got, err := im.arrive(1, IndividualID(MaxIndividuals-1))

	// THEN the step fails instead of reusing random streams
	require.Error(t, err)
	assert.Contains(t, err.Error(), "would exceed")
	assert.Nil(t, got)
}
