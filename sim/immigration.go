package sim

import (
	"fmt"
	"math/rand/v2"
)

// TraitDrawer draws the creation-time traits of one individual. It is owned
// by the data-loading layer (see sim/demography) and consumed here only as a
// draw function.
type TraitDrawer interface {
	Draw(rng *rand.Rand) (Traits, error)
}

// ArrivalProcess returns how many individuals arrive at step. Zero is always
// valid.
type ArrivalProcess interface {
	Count(step int, rng *rand.Rand) int
}

// TemperatureSource returns the ambient temperature at step.
type TemperatureSource interface {
	Temperature(step int) float64
}

// ConstantTemperature is a TemperatureSource that never changes.
type ConstantTemperature float64

// Temperature implements TemperatureSource.
func (c ConstantTemperature) Temperature(int) float64 { return float64(c) }

// FixedArrivals admits the same number of individuals every step.
type FixedArrivals int

// Count implements ArrivalProcess.
func (f FixedArrivals) Count(int, *rand.Rand) int { return int(f) }

// NoArrivals is the closed-population ArrivalProcess.
var NoArrivals ArrivalProcess = FixedArrivals(0)

// immigration turns arrival counts and trait draws into new individuals.
type immigration struct {
	cfg       ImmigrationConfig
	bounds    Bounds
	locations int
	drawer    TraitDrawer
	arrivals  ArrivalProcess
	rng       *PartitionedRNG
}

// arrive builds the arrivals of step with ids starting at first. Arrivals are
// Susceptible unless imported infected, in which case they are infected at
// step and shed from the next step on. Nothing is committed here.
func (im *immigration) arrive(step int, first IndividualID) ([]Individual, error) {
	n := im.arrivals.Count(step, im.rng.ForStep(SubsystemImmigration, step))
	if n <= 0 {
		return nil, nil
	}
	if int64(first)+int64(n) > MaxIndividuals {
		return nil, fmt.Errorf("arrival at step %d: %d arrivals would exceed %d individuals", step, n, MaxIndividuals)
	}
	out := make([]Individual, 0, n)
	for k := 0; k < n; k++ {
		id := first + IndividualID(k)
		rng := im.rng.ForIndividual(SubsystemImmigration, step, id)
		ind, err := drawIndividual(id, step, im.drawer, rng, im.bounds, im.locations)
		if err != nil {
			return nil, fmt.Errorf("arrival at step %d: %w", step, err)
		}
		if im.cfg.ImportedInfectionProb > 0 && rng.Float64() < im.cfg.ImportedInfectionProb {
			ind.infect(step)
		}
		out = append(out, ind)
	}
	return out, nil
}

// drawIndividual draws traits, clips the location into the world and checks
// the key location against the transport model.
func drawIndividual(id IndividualID, step int, drawer TraitDrawer, rng *rand.Rand, bounds Bounds, locations int) (Individual, error) {
	t, err := drawer.Draw(rng)
	if err != nil {
		return Individual{}, err
	}
	if t.KeyLocation < 0 || t.KeyLocation >= locations {
		return Individual{}, fmt.Errorf("individual %d: key location %d out of range [0,%d)", id, t.KeyLocation, locations)
	}
	t.Location = bounds.Clamp(t.Location)
	return newIndividual(id, t, step)
}
