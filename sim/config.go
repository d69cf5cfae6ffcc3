package sim

import (
	"fmt"
	"math"
	"runtime"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/inference-sim/episim/sim/trace"
)

// RowSumTolerance is the accepted deviation of a transition-matrix row sum
// from 1.
const RowSumTolerance = 1e-9

// Config is the complete engine configuration. Zero values are not usable;
// start from DefaultConfig and override.
type Config struct {
	Seed        int64             `yaml:"seed"`
	Steps       int               `yaml:"steps"`
	World       WorldConfig       `yaml:"world"`
	Population  PopulationConfig  `yaml:"population"`
	Disease     DiseaseConfig     `yaml:"disease"`
	Transport   TransportConfig   `yaml:"transport"`
	Medical     MedicalConfig     `yaml:"medical"`
	Immigration ImmigrationConfig `yaml:"immigration"`
	Reinfection ReinfectionConfig `yaml:"reinfection"`
	Runtime     RuntimeConfig     `yaml:"runtime"`
	Trace       trace.TraceConfig `yaml:"trace"`
}

// WorldConfig groups the simulation area and the ambient temperature.
type WorldConfig struct {
	Bounds             Bounds  `yaml:"bounds"`
	AverageTemperature float64 `yaml:"average_temperature"` // used when no TemperatureSource is supplied
}

// PopulationConfig groups initial seeding parameters.
type PopulationConfig struct {
	Initial         int `yaml:"initial"`          // individuals drawn before step 1
	InitialInfected int `yaml:"initial_infected"` // index cases, infected at step 0
}

// AgeBracket holds the age-indexed rates for ages in [MinAge, MaxAge].
type AgeBracket struct {
	MinAge        int     `yaml:"min_age"`
	MaxAge        int     `yaml:"max_age"`
	DeathRate     float64 `yaml:"death_rate"`      // per-step death probability of a fully vulnerable symptomatic case
	OnsetMeanDays float64 `yaml:"onset_mean_days"` // mean asymptomatic duration
	OnsetShape    float64 `yaml:"onset_shape"`     // Gamma shape of the asymptomatic duration
}

// DiseaseConfig groups the pressure kernel and the transition-rate model.
type DiseaseConfig struct {
	InfectiousRate         float64 `yaml:"infectious_rate"`         // base scalar applied to the summed kernel
	TemperatureSensitivity float64 `yaml:"temperature_sensitivity"` // fractional rate change per degree below reference
	ReferenceTemperature   float64 `yaml:"reference_temperature"`

	KernelScale         float64 `yaml:"kernel_scale"`          // sigma = infection_radius * KernelScale
	VirusLifeExpectancy int     `yaml:"virus_life_expectancy"` // steps after infection at which shedding reaches 0
	Decay               string  `yaml:"decay"`                 // "linear" (default) or "exponential"
	NegligibleWeight    float64 `yaml:"negligible_weight"`     // contributions below this may be skipped; 0 = exact
	FullScanBelow       int     `yaml:"full_scan_below"`       // source counts below this skip the grid

	InfectionScale          float64      `yaml:"infection_scale"`           // p = 1 - exp(-scale * pressure * (1 - immunity))
	AsymptomaticDeathFactor float64      `yaml:"asymptomatic_death_factor"` // in [0,1]; asymptomatic death <= symptomatic death
	RecoveryDays            int          `yaml:"recovery_days"`             // symptomatic steps before recovery is possible
	AgeBrackets             []AgeBracket `yaml:"age_brackets"`
}

// KeyLocation is a named anchor individuals move around.
type KeyLocation struct {
	Name       string  `yaml:"name" csv:"name"`
	X          float64 `yaml:"x" csv:"x"`
	Y          float64 `yaml:"y" csv:"y"`
	Population float64 `yaml:"population" csv:"population"` // relative size, used for arrival weights
}

// Location returns the anchor coordinate.
func (k KeyLocation) Location() Location {
	return Location{X: k.X, Y: k.Y}
}

// TransportConfig groups the movement model.
type TransportConfig struct {
	KeyLocations   []KeyLocation `yaml:"key_locations"`
	Matrix         [][]float64   `yaml:"matrix"`          // row-stochastic, len(KeyLocations) square
	MovementSigma  float64       `yaml:"movement_sigma"`  // meters of jitter at mobility 1
	MobilityFactor float64       `yaml:"mobility_factor"` // policy knob in [0,1]; 1 = unrestricted
}

// ResourceBudget bounds how many individuals may be tested per step.
// Schedule, when non-empty, overrides PerStep/Fraction for the steps it
// covers (step 1 uses Schedule[0]).
type ResourceBudget struct {
	PerStep  int     `yaml:"per_step"`
	Fraction float64 `yaml:"fraction"` // of the living population
	Schedule []int   `yaml:"schedule"`
}

// For returns the effective budget at step given the living population size.
func (b ResourceBudget) For(step, living int) int {
	if step >= 1 && step <= len(b.Schedule) {
		return b.Schedule[step-1]
	}
	budget := b.PerStep
	if byFraction := int(math.Floor(b.Fraction * float64(living))); byFraction > budget {
		budget = byFraction
	}
	return budget
}

// MedicalConfig groups the observation layer.
type MedicalConfig struct {
	Budget            ResourceBudget `yaml:"budget"`
	Policy            string         `yaml:"policy"`             // "uniform" (default) or "symptomatic-weighted"
	SymptomaticWeight float64        `yaml:"symptomatic_weight"` // weight of symptomatic candidates under symptomatic-weighted
}

// ImmigrationConfig groups arrival parameters owned by the engine. Arrival
// counts and traits come from the injected ArrivalProcess and TraitDrawer.
type ImmigrationConfig struct {
	ImportedInfectionProb float64 `yaml:"imported_infection_prob"`
}

// ReinfectionConfig controls whether Recovered is terminal.
type ReinfectionConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Protection float64 `yaml:"protection"` // added immunity after recovery, [0,1]
}

// RuntimeConfig groups execution knobs that never change results.
type RuntimeConfig struct {
	Workers int `yaml:"workers"` // 0 = GOMAXPROCS
}

// Decay modes.
const (
	DecayLinear      = "linear"
	DecayExponential = "exponential"
)

// Medical policies.
const (
	PolicyUniform             = "uniform"
	PolicySymptomaticWeighted = "symptomatic-weighted"
)

// ValidDecayModes is the set of recognized decay mode names.
var ValidDecayModes = map[string]bool{"": true, DecayLinear: true, DecayExponential: true}

// ValidMedicalPolicies is the set of recognized testing policy names.
var ValidMedicalPolicies = map[string]bool{"": true, PolicyUniform: true, PolicySymptomaticWeighted: true}

// DefaultAgeBrackets is a coarse baseline rate table. Calibrated tables are
// supplied by the scenario.
func DefaultAgeBrackets() []AgeBracket {
	return []AgeBracket{
		{MinAge: 0, MaxAge: 19, DeathRate: 0.0001, OnsetMeanDays: 6, OnsetShape: 4},
		{MinAge: 20, MaxAge: 49, DeathRate: 0.0008, OnsetMeanDays: 5.5, OnsetShape: 4},
		{MinAge: 50, MaxAge: 69, DeathRate: 0.004, OnsetMeanDays: 5, OnsetShape: 4},
		{MinAge: 70, MaxAge: 150, DeathRate: 0.015, OnsetMeanDays: 4.5, OnsetShape: 4},
	}
}

// DefaultConfig returns a small runnable baseline scenario: a 10 km square
// with three key locations.
func DefaultConfig() Config {
	return Config{
		Seed:  42,
		Steps: 120,
		World: WorldConfig{
			Bounds:             Bounds{XMax: 10000, YMax: 10000},
			AverageTemperature: 15,
		},
		Population: PopulationConfig{Initial: 2000, InitialInfected: 5},
		Disease: DiseaseConfig{
			InfectiousRate:          0.5,
			TemperatureSensitivity:  0.02,
			ReferenceTemperature:    15,
			KernelScale:             3,
			VirusLifeExpectancy:     14,
			Decay:                   DecayLinear,
			NegligibleWeight:        1e-9,
			FullScanBelow:           64,
			InfectionScale:          1,
			AsymptomaticDeathFactor: 0.25,
			RecoveryDays:            10,
			AgeBrackets:             DefaultAgeBrackets(),
		},
		Transport: TransportConfig{
			KeyLocations: []KeyLocation{
				{Name: "center", X: 5000, Y: 5000, Population: 3},
				{Name: "north", X: 5000, Y: 8500, Population: 1},
				{Name: "west", X: 1500, Y: 4000, Population: 1},
			},
			Matrix: [][]float64{
				{0.90, 0.05, 0.05},
				{0.10, 0.88, 0.02},
				{0.10, 0.02, 0.88},
			},
			MovementSigma:  400,
			MobilityFactor: 1,
		},
		Medical: MedicalConfig{
			Budget:            ResourceBudget{PerStep: 50},
			Policy:            PolicySymptomaticWeighted,
			SymptomaticWeight: 10,
		},
	}
}

// NewDiseaseConfig builds a DiseaseConfig with the default kernel and rate
// settings and the given base infectious rate.
func NewDiseaseConfig(infectiousRate float64) DiseaseConfig {
	d := DefaultConfig().Disease
	d.InfectiousRate = infectiousRate
	return d
}

// workers resolves the worker count.
func (r RuntimeConfig) workers() int {
	if r.Workers > 0 {
		return r.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Validate checks every section and returns the first *ConfigurationError.
func (c *Config) Validate() error {
	if c.Steps < 0 || c.Steps > MaxSteps {
		return configErrorf("steps", "must be in [0, %d], got %d", MaxSteps, c.Steps)
	}
	if err := c.World.Bounds.validate(); err != nil {
		return err
	}
	if math.IsNaN(c.World.AverageTemperature) || math.IsInf(c.World.AverageTemperature, 0) {
		return configErrorf("world.average_temperature", "must be finite, got %v", c.World.AverageTemperature)
	}
	if c.Population.Initial < 0 || int64(c.Population.Initial) > MaxIndividuals {
		return configErrorf("population.initial", "must be in [0, %d], got %d", MaxIndividuals, c.Population.Initial)
	}
	if c.Population.InitialInfected < 0 || c.Population.InitialInfected > c.Population.Initial {
		return configErrorf("population.initial_infected", "must be in [0, %d], got %d", c.Population.Initial, c.Population.InitialInfected)
	}
	if err := c.Disease.validate(); err != nil {
		return err
	}
	if err := c.Transport.validate(c.World.Bounds); err != nil {
		return err
	}
	if err := c.Medical.validate(); err != nil {
		return err
	}
	if p := c.Immigration.ImportedInfectionProb; !(p >= 0 && p <= 1) {
		return configErrorf("immigration.imported_infection_prob", "must be in [0,1], got %v", p)
	}
	if p := c.Reinfection.Protection; !(p >= 0 && p <= 1) {
		return configErrorf("reinfection.protection", "must be in [0,1], got %v", p)
	}
	if !trace.IsValidTraceLevel(string(c.Trace.Level)) {
		return configErrorf("trace.level", "unknown trace level %q", c.Trace.Level)
	}
	if c.Trace.Every < 0 {
		return configErrorf("trace.every", "must be non-negative, got %d", c.Trace.Every)
	}
	if c.Runtime.Workers < 0 {
		return configErrorf("runtime.workers", "must be non-negative, got %d", c.Runtime.Workers)
	}
	return nil
}

func (d *DiseaseConfig) validate() error {
	nonNegative := []struct {
		field string
		v     float64
	}{
		{"disease.infectious_rate", d.InfectiousRate},
		{"disease.negligible_weight", d.NegligibleWeight},
		{"disease.infection_scale", d.InfectionScale},
	}
	for _, q := range nonNegative {
		if !(q.v >= 0) || math.IsInf(q.v, 0) {
			return configErrorf(q.field, "must be a finite non-negative number, got %v", q.v)
		}
	}
	for _, q := range []struct {
		field string
		v     float64
	}{
		{"disease.temperature_sensitivity", d.TemperatureSensitivity},
		{"disease.reference_temperature", d.ReferenceTemperature},
	} {
		if math.IsNaN(q.v) || math.IsInf(q.v, 0) {
			return configErrorf(q.field, "must be finite, got %v", q.v)
		}
	}
	if !(d.KernelScale > 0) || math.IsInf(d.KernelScale, 0) {
		return configErrorf("disease.kernel_scale", "must be a finite positive number, got %v", d.KernelScale)
	}
	if d.VirusLifeExpectancy <= 0 {
		return configErrorf("disease.virus_life_expectancy", "must be positive, got %d", d.VirusLifeExpectancy)
	}
	if !ValidDecayModes[d.Decay] {
		return configErrorf("disease.decay", "unknown decay mode %q", d.Decay)
	}
	if d.FullScanBelow < 0 {
		return configErrorf("disease.full_scan_below", "must be non-negative, got %d", d.FullScanBelow)
	}
	if !(d.AsymptomaticDeathFactor >= 0 && d.AsymptomaticDeathFactor <= 1) {
		return configErrorf("disease.asymptomatic_death_factor", "must be in [0,1], got %v", d.AsymptomaticDeathFactor)
	}
	if d.RecoveryDays < 0 {
		return configErrorf("disease.recovery_days", "must be non-negative, got %d", d.RecoveryDays)
	}
	if len(d.AgeBrackets) == 0 {
		return configErrorf("disease.age_brackets", "at least one bracket is required")
	}
	for i, b := range d.AgeBrackets {
		field := fmt.Sprintf("disease.age_brackets[%d]", i)
		if b.MinAge < 0 || b.MaxAge < b.MinAge {
			return configErrorf(field, "invalid age range [%d, %d]", b.MinAge, b.MaxAge)
		}
		if i > 0 && b.MinAge <= d.AgeBrackets[i-1].MaxAge {
			return configErrorf(field, "overlaps or is out of order with the previous bracket")
		}
		if !(b.DeathRate >= 0 && b.DeathRate <= 1) {
			return configErrorf(field+".death_rate", "must be in [0,1], got %v", b.DeathRate)
		}
		if !(b.OnsetMeanDays > 0) || !(b.OnsetShape > 0) {
			return configErrorf(field, "onset mean and shape must be positive, got %v and %v", b.OnsetMeanDays, b.OnsetShape)
		}
	}
	return nil
}

func (t *TransportConfig) validate(bounds Bounds) error {
	n := len(t.KeyLocations)
	if n == 0 {
		return configErrorf("transport.key_locations", "at least one key location is required")
	}
	for i, k := range t.KeyLocations {
		if !bounds.Contains(k.Location()) {
			return configErrorf(fmt.Sprintf("transport.key_locations[%d]", i), "%q at %s lies outside the world", k.Name, k.Location())
		}
		if !(k.Population >= 0) {
			return configErrorf(fmt.Sprintf("transport.key_locations[%d].population", i), "must be non-negative, got %v", k.Population)
		}
	}
	if len(t.Matrix) != n {
		return configErrorf("transport.matrix", "has %d rows, want %d", len(t.Matrix), n)
	}
	for i, row := range t.Matrix {
		field := fmt.Sprintf("transport.matrix[%d]", i)
		if len(row) != n {
			return configErrorf(field, "has %d columns, want %d", len(row), n)
		}
		for j, p := range row {
			if !(p >= 0) || math.IsInf(p, 0) {
				return configErrorf(fmt.Sprintf("%s[%d]", field, j), "must be a finite non-negative probability, got %v", p)
			}
		}
		if sum := floats.Sum(row); math.Abs(sum-1) > RowSumTolerance {
			return configErrorf(field, "is not stochastic: sums to %.12f", sum)
		}
	}
	if !(t.MovementSigma >= 0) || math.IsInf(t.MovementSigma, 0) {
		return configErrorf("transport.movement_sigma", "must be a finite non-negative number, got %v", t.MovementSigma)
	}
	if !(t.MobilityFactor >= 0 && t.MobilityFactor <= 1) {
		return configErrorf("transport.mobility_factor", "must be in [0,1], got %v", t.MobilityFactor)
	}
	if t.MovementSigma == 0 {
		logrus.Warnf("transport.movement_sigma is 0: individuals sit exactly on their key location")
	}
	return nil
}

func (m *MedicalConfig) validate() error {
	if m.Budget.PerStep < 0 {
		return configErrorf("medical.budget.per_step", "must be non-negative, got %d", m.Budget.PerStep)
	}
	if !(m.Budget.Fraction >= 0 && m.Budget.Fraction <= 1) {
		return configErrorf("medical.budget.fraction", "must be in [0,1], got %v", m.Budget.Fraction)
	}
	for i, b := range m.Budget.Schedule {
		if b < 0 {
			return configErrorf(fmt.Sprintf("medical.budget.schedule[%d]", i), "must be non-negative, got %d", b)
		}
	}
	if !ValidMedicalPolicies[m.Policy] {
		return configErrorf("medical.policy", "unknown testing policy %q", m.Policy)
	}
	if m.Policy == PolicySymptomaticWeighted && !(m.SymptomaticWeight >= 1) {
		return configErrorf("medical.symptomatic_weight", "must be >= 1 under %s, got %v", PolicySymptomaticWeighted, m.SymptomaticWeight)
	}
	return nil
}
