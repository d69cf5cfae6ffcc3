package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/episim/sim/trace"
)

func newTestSimulator(t *testing.T, cfg Config, arrivals ArrivalProcess) *Simulator {
	t.Helper()
	s, err := NewSimulator(cfg, newTestDrawer(cfg), arrivals, nil)
	require.NoError(t, err)
	return s
}

func TestNewSimulator_SeedsPopulation(t *testing.T) {
	cfg := newTestConfig(100, 5)
	s := newTestSimulator(t, cfg, nil)

	assert.Equal(t, 0, s.CurrentStep())
	assert.Equal(t, 100, s.Population().Size())
	assert.Equal(t, 5, s.Population().InfectedCount())
	for _, ind := range s.Population().Individuals() {
		assert.True(t, cfg.World.Bounds.Contains(ind.Location))
		if ind.State.Infectious() {
			assert.Equal(t, 0, ind.InfectionStep)
		}
	}
	_, err := s.Field()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestNewSimulator_RejectsInvalidConfig(t *testing.T) {
	cfg := newTestConfig(10, 20)
	_, err := NewSimulator(cfg, newTestDrawer(cfg), nil, nil)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "population.initial_infected", cfgErr.Field)
}

func TestNewSimulator_RequiresDrawer(t *testing.T) {
	_, err := NewSimulator(newTestConfig(10, 1), nil, nil, nil)
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestSimulator_Run_ConservesPopulation(t *testing.T) {
	// GIVEN a closed population with an aggressive disease
	cfg := newTestConfig(300, 10)
	s := newTestSimulator(t, cfg, nil)

	// WHEN run to the horizon
	snaps, err := s.Run(context.Background(), nil)
	require.NoError(t, err)

	// THEN every step accounts for every individual
	require.Len(t, snaps, cfg.Steps)
	for i, snap := range snaps {
		assert.Equal(t, i+1, snap.Step)
		assert.Equal(t, 300, snap.Population)
		assert.Equal(t, snap.Population, snap.Living+snap.TrueDead, "step %d", snap.Step)
		assert.Equal(t, snap.Living, snap.Susceptible+snap.TrueInfected+snap.TrueRecovered, "step %d", snap.Step)
		assert.LessOrEqual(t, snap.ObservedInfected, min(snap.Budget, snap.TrueInfected), "step %d", snap.Step)
		if i > 0 {
			assert.GreaterOrEqual(t, snap.TrueDead, snaps[i-1].TrueDead, "dead never revive")
			assert.GreaterOrEqual(t, snap.CumulativeConfirmed, snaps[i-1].CumulativeConfirmed)
		}
	}
	assert.Equal(t, cfg.Steps, s.CurrentStep())
	assert.Greater(t, s.Metrics().EverInfected, 10, "the outbreak spreads")
}

func TestSimulator_DeadStayFrozen(t *testing.T) {
	cfg := newTestConfig(200, 20)
	for i := range cfg.Disease.AgeBrackets {
		cfg.Disease.AgeBrackets[i].DeathRate = 0.3
	}
	s := newTestSimulator(t, cfg, nil)

	dead := map[IndividualID]Individual{}
	for step := 0; step < cfg.Steps; step++ {
		_, err := s.Step()
		require.NoError(t, err)
		for _, ind := range s.Population().Individuals() {
			if prev, ok := dead[ind.ID]; ok {
				assert.Equal(t, prev, ind, "dead individual %d changed", ind.ID)
			} else if ind.State == StateDead {
				dead[ind.ID] = ind
			}
		}
	}
	assert.NotEmpty(t, dead)
}

func TestSimulator_Determinism_AcrossWorkerCounts(t *testing.T) {
	// GIVEN the same seed run with 1 and 4 workers on a population large
	// enough for the parallel path
	run := func(workers int) ([]Snapshot, []Individual) {
		cfg := newTestConfig(500, 10)
		cfg.Runtime.Workers = workers
		s := newTestSimulator(t, cfg, FixedArrivals(3))
		snaps, err := s.Run(context.Background(), nil)
		require.NoError(t, err)
		return snaps, s.Population().Individuals()
	}

	snaps1, pop1 := run(1)
	snaps4, pop4 := run(4)

	// THEN the runs are identical
	assert.Equal(t, snaps1, snaps4)
	assert.Equal(t, pop1, pop4)
}

func TestSimulator_DifferentSeeds_Diverge(t *testing.T) {
	a := newTestConfig(300, 10)
	b := newTestConfig(300, 10)
	b.Seed = a.Seed + 1

	sa, sb := newTestSimulator(t, a, nil), newTestSimulator(t, b, nil)
	snapsA, err := sa.Run(context.Background(), nil)
	require.NoError(t, err)
	snapsB, err := sb.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.NotEqual(t, sa.Population().Individuals(), sb.Population().Individuals())
	assert.Len(t, snapsB, len(snapsA))
}

func TestSimulator_Immigration_FixedArrivals(t *testing.T) {
	// GIVEN 5 arrivals per step and no deaths
	cfg := newTestConfig(100, 2)
	cfg.Steps = 10
	for i := range cfg.Disease.AgeBrackets {
		cfg.Disease.AgeBrackets[i].DeathRate = 0
	}
	s := newTestSimulator(t, cfg, FixedArrivals(5))

	// WHEN run for 10 steps
	snaps, err := s.Run(context.Background(), nil)
	require.NoError(t, err)

	// THEN the population grew by exactly 50 with contiguous ids
	assert.Equal(t, 150, s.Population().Size())
	assert.Equal(t, 150, snaps[len(snaps)-1].Living)
	for i, snap := range snaps {
		assert.Equal(t, 5, snap.Arrivals)
		assert.Equal(t, 100+5*(i+1), snap.Population)
	}
	for i, ind := range s.Population().Individuals() {
		assert.Equal(t, IndividualID(i), ind.ID)
		if i >= 100 {
			assert.Equal(t, 1+(i-100)/5, ind.ArrivalStep)
		}
	}
	assert.Equal(t, 50, s.Metrics().TotalArrivals)
}

func TestSimulator_Immigration_ImportedInfections(t *testing.T) {
	cfg := newTestConfig(50, 0)
	cfg.Steps = 3
	cfg.Immigration.ImportedInfectionProb = 1
	s := newTestSimulator(t, cfg, FixedArrivals(2))

	_, err := s.Run(context.Background(), nil)
	require.NoError(t, err)

	for _, ind := range s.Population().Individuals()[50:] {
		assert.Equal(t, 1, ind.Infections)
		assert.Equal(t, ind.ArrivalStep, ind.InfectionStep)
	}
}

func TestSimulator_ZeroBudget_ObservesNothing(t *testing.T) {
	// GIVEN a testing budget of 0
	cfg := newTestConfig(200, 10)
	cfg.Steps = 10
	cfg.Medical.Budget = ResourceBudget{}
	s := newTestSimulator(t, cfg, nil)

	// WHEN run for 10 steps
	snaps, err := s.Run(context.Background(), nil)
	require.NoError(t, err)

	// THEN nothing is ever observed while the truth evolves
	for _, snap := range snaps {
		assert.Equal(t, 0, snap.Tested)
		assert.Equal(t, 0, snap.ObservedInfected)
		assert.Equal(t, 0, snap.CumulativeConfirmed)
	}
	assert.Greater(t, snaps[len(snaps)-1].TrueInfected+snaps[len(snaps)-1].TrueRecovered+snaps[len(snaps)-1].TrueDead, 0)
}

func TestSimulator_FailedStep_LeavesStateUntouched(t *testing.T) {
	// GIVEN arrivals whose trait draw fails after the initial population
	cfg := newTestConfig(120, 10)
	drawer := &failingDrawer{TraitDrawer: newTestDrawer(cfg), ok: 120 + 3}
	s, err := NewSimulator(cfg, drawer, FixedArrivals(3), nil)
	require.NoError(t, err)

	_, err = s.Step()
	require.NoError(t, err)
	before := s.Population().Individuals()
	counts := s.Population().Counts()
	field, err := s.Field()
	require.NoError(t, err)
	pressureProbe := field.At(Location{X: 600, Y: 600})

	// WHEN the next step fails while building arrivals
	_, err = s.Step()

	// THEN the error surfaces and nothing was committed
	require.ErrorIs(t, err, errDrawFailed)
	assert.Equal(t, 1, s.CurrentStep())
	assert.Len(t, s.Snapshots(), 1)
	assert.Equal(t, before, s.Population().Individuals())
	assert.Equal(t, counts, s.Population().Counts())
	after, err := s.Field()
	require.NoError(t, err)
	assert.Equal(t, 1, after.Step)
	assert.Equal(t, pressureProbe, after.At(Location{X: 600, Y: 600}))
}

func TestSimulator_NonFiniteTemperature_FailsFast(t *testing.T) {
	tests := []struct {
		name          string
		fullScanBelow int
		sensitivity   float64
		temperature   float64
		quantity      string
	}{
		{"NaN on full scan", 1000, 0.02, math.NaN(), "temperature"},
		{"NaN on grid index", 64, 0.02, math.NaN(), "temperature"},
		{"infinite temperature", 64, 0.02, math.Inf(-1), "temperature"},
		{"overflowing rate", 64, 1, -math.MaxFloat64, "infectious rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN 100 infectious sources and a temperature that turns bad after step 1
			cfg := newTestConfig(200, 100)
			cfg.Disease.FullScanBelow = tt.fullScanBelow
			cfg.Disease.TemperatureSensitivity = tt.sensitivity
			temperature := temperatureFunc(func(step int) float64 {
				if step >= 2 {
					return tt.temperature
				}
				return 10
			})
			s, err := NewSimulator(cfg, newTestDrawer(cfg), nil, temperature)
			require.NoError(t, err)
			_, err = s.Step()
			require.NoError(t, err)
			before := s.Population().Individuals()

			// WHEN the next step reads it
			_, err = s.Step()

			// THEN the step aborts before building the field and commits nothing
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNonFinite), "got %v", err)
			var domainErr *NumericDomainError
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, tt.quantity, domainErr.Quantity)
			assert.Equal(t, before, s.Population().Individuals())
			assert.Equal(t, 1, s.CurrentStep())
			field, err := s.Field()
			require.NoError(t, err)
			assert.Equal(t, 1, field.Step)
		})
	}
}

func TestSimulator_Run_Cancelled(t *testing.T) {
	cfg := newTestConfig(50, 1)
	s := newTestSimulator(t, cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())

	snaps, err := s.Run(ctx, func(snap Snapshot) error {
		if snap.Step == 3 {
			cancel()
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, snaps, 3)
	assert.Equal(t, 3, s.CurrentStep())
}

func TestSimulator_Run_OnStepErrorStops(t *testing.T) {
	s := newTestSimulator(t, newTestConfig(50, 1), nil)
	stop := errors.New("sink full")

	snaps, err := s.Run(context.Background(), func(snap Snapshot) error {
		if snap.Step == 2 {
			return stop
		}
		return nil
	})

	assert.ErrorIs(t, err, stop)
	assert.Len(t, snaps, 2)
}

func TestSimulator_Trace_RecordsTransitionsAndDumps(t *testing.T) {
	cfg := newTestConfig(100, 5)
	cfg.Steps = 6
	cfg.Trace = trace.TraceConfig{Level: trace.TraceLevelIndividuals, Every: 3}
	s := newTestSimulator(t, cfg, nil)

	_, err := s.Run(context.Background(), nil)
	require.NoError(t, err)

	st := s.Trace()
	require.NotNil(t, st)
	infections := 0
	for _, r := range st.Transitions {
		if r.Kind == trace.KindInfection {
			infections++
		}
	}
	assert.Equal(t, s.Metrics().EverInfected, infections, "one infection record per episode")
	// Dumps at steps 3 and 6.
	assert.Len(t, st.Individuals, 200)
	assert.Equal(t, 3, st.Individuals[0].Step)
	assert.Equal(t, 6, st.Individuals[len(st.Individuals)-1].Step)
}

func TestSimulator_TraceOff_IsNil(t *testing.T) {
	s := newTestSimulator(t, newTestConfig(10, 1), nil)
	assert.Nil(t, s.Trace())
}

func TestSimulator_ColdTemperature_RaisesRate(t *testing.T) {
	cfg := newTestConfig(100, 5)
	cfg.Steps = 1
	cold, err := NewSimulator(cfg, newTestDrawer(cfg), nil, ConstantTemperature(0))
	require.NoError(t, err)
	warm, err := NewSimulator(cfg, newTestDrawer(cfg), nil, ConstantTemperature(30))
	require.NoError(t, err)

	c, err := cold.Step()
	require.NoError(t, err)
	w, err := warm.Step()
	require.NoError(t, err)

	assert.Greater(t, c.InfectiousRate, w.InfectiousRate)
	assert.Equal(t, 30.0, w.Temperature)
}
