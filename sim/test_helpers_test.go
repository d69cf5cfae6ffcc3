package sim

import (
	"errors"
	"math/rand/v2"
)

// uniformDrawer scatters individuals uniformly over the world with fixed
// real-valued traits. It keeps sim tests independent of sim/demography.
type uniformDrawer struct {
	bounds    Bounds
	locations int
	traits    Traits
}

func (d *uniformDrawer) Draw(rng *rand.Rand) (Traits, error) {
	t := d.traits
	t.Age = rng.IntN(90)
	t.KeyLocation = rng.IntN(d.locations)
	t.Location = Location{X: rng.Float64() * d.bounds.XMax, Y: rng.Float64() * d.bounds.YMax}
	return t, nil
}

// failingDrawer delegates the first ok draws and fails every draw after.
type failingDrawer struct {
	TraitDrawer
	ok    int
	draws int
}

var errDrawFailed = errors.New("trait draw failed")

func (d *failingDrawer) Draw(rng *rand.Rand) (Traits, error) {
	d.draws++
	if d.draws > d.ok {
		return Traits{}, errDrawFailed
	}
	return d.TraitDrawer.Draw(rng)
}

// temperatureFunc adapts a function to TemperatureSource.
type temperatureFunc func(step int) float64

func (f temperatureFunc) Temperature(step int) float64 { return f(step) }

// newTestConfig returns a small, fast configuration: a 2 km square, two key
// locations and an aggressive disease so every state is reached in a few
// dozen steps.
func newTestConfig(initial, infected int) Config {
	cfg := DefaultConfig()
	cfg.Steps = 20
	cfg.World.Bounds = Bounds{XMax: 2000, YMax: 2000}
	cfg.Population = PopulationConfig{Initial: initial, InitialInfected: infected}
	cfg.Disease.InfectiousRate = 50
	cfg.Disease.RecoveryDays = 4
	cfg.Transport = TransportConfig{
		KeyLocations: []KeyLocation{
			{Name: "a", X: 600, Y: 600, Population: 1},
			{Name: "b", X: 1400, Y: 1400, Population: 1},
		},
		Matrix:         [][]float64{{0.8, 0.2}, {0.3, 0.7}},
		MovementSigma:  200,
		MobilityFactor: 1,
	}
	cfg.Medical = MedicalConfig{Budget: ResourceBudget{PerStep: 10}, Policy: PolicyUniform}
	cfg.Runtime.Workers = 1
	return cfg
}

// newTestDrawer returns a drawer matching cfg.
func newTestDrawer(cfg Config) *uniformDrawer {
	return &uniformDrawer{
		bounds:    cfg.World.Bounds,
		locations: len(cfg.Transport.KeyLocations),
		traits: Traits{
			Vulnerability:   0.5,
			Immunity:        0.1,
			Mobility:        0.8,
			InfectionRadius: 40,
		},
	}
}

// testTraits returns valid traits at l.
func testTraits(l Location) Traits {
	return Traits{Age: 30, Location: l, Vulnerability: 0.5, Immunity: 0, Mobility: 1, InfectionRadius: 2}
}
