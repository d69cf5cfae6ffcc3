package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/episim/sim"
	"github.com/inference-sim/episim/sim/climate"
	"github.com/inference-sim/episim/sim/demography"
)

// GravitySpec derives the transport matrix from key-location populations.
type GravitySpec struct {
	Stay     float64 `yaml:"stay"`
	Exponent float64 `yaml:"exponent"`
}

// defaultGravity is used when key locations come from a file whose size does
// not match the configured matrix.
var defaultGravity = GravitySpec{Stay: 0.9, Exponent: 1}

// Scenario is the full YAML scenario: the engine configuration inline plus
// the collaborators that feed it.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Scenario struct {
	sim.Config `yaml:",inline"`

	KeyLocationsFile string          `yaml:"key_locations_file,omitempty"` // CSV name,x,y,population; replaces transport.key_locations
	Gravity          *GravitySpec    `yaml:"gravity,omitempty"`            // replaces transport.matrix
	Demography       demography.Spec `yaml:"demography"`
	Climate          *climate.Config `yaml:"climate,omitempty"` // nil = constant world.average_temperature
}

// DefaultScenario returns the baseline engine configuration and demography.
func DefaultScenario() Scenario {
	return Scenario{Config: sim.DefaultConfig(), Demography: demography.DefaultSpec()}
}

// fillDefaults sets every trait distribution the scenario left empty.
func (s *Scenario) fillDefaults() {
	def := demography.DefaultSpec()
	for _, d := range []struct {
		dst *demography.DistSpec
		def demography.DistSpec
	}{
		{&s.Demography.Vulnerability, def.Vulnerability},
		{&s.Demography.Immunity, def.Immunity},
		{&s.Demography.Mobility, def.Mobility},
		{&s.Demography.InfectionRadius, def.InfectionRadius},
	} {
		if d.dst.Type == "" {
			*d.dst = d.def
		}
	}
	if len(s.Demography.AgeGroups) == 0 && s.Demography.AgeGroupsFile == "" {
		s.Demography.AgeGroups = def.AgeGroups
	}
}

// LoadScenario reads a YAML scenario over the defaults.
// Uses strict parsing: unrecognized keys (typos) are rejected.
// Relative file references are resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	// Distributions and age groups are cleared so a partial override never
	// merges with default params; fillDefaults restores what stays unset.
	scn := DefaultScenario()
	scn.Demography.AgeGroups = nil
	scn.Demography.Vulnerability = demography.DistSpec{}
	scn.Demography.Immunity = demography.DistSpec{}
	scn.Demography.Mobility = demography.DistSpec{}
	scn.Demography.InfectionRadius = demography.DistSpec{}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scn); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	scn.fillDefaults()

	dir := filepath.Dir(path)
	scn.KeyLocationsFile = resolve(dir, scn.KeyLocationsFile)
	scn.Demography.AgeGroupsFile = resolve(dir, scn.Demography.AgeGroupsFile)
	if scn.Climate != nil {
		scn.Climate.File = resolve(dir, scn.Climate.File)
	}
	return &scn, nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// Built is a scenario resolved into engine inputs.
type Built struct {
	Config      sim.Config
	Drawer      sim.TraitDrawer
	Arrivals    sim.ArrivalProcess
	Temperature sim.TemperatureSource
}

// Build loads referenced files, derives the transport matrix when asked and
// constructs the collaborators. The returned config is validated.
func (s *Scenario) Build() (*Built, error) {
	cfg := s.Config
	gravity := s.Gravity
	if s.KeyLocationsFile != "" {
		locations, err := demography.LoadKeyLocations(s.KeyLocationsFile)
		if err != nil {
			return nil, err
		}
		cfg.Transport.KeyLocations = locations
		if gravity == nil && len(cfg.Transport.Matrix) != len(locations) {
			logrus.Warnf("%d key locations loaded but transport.matrix has %d rows: using a gravity matrix (stay=%.2f, exponent=%.1f)",
				len(locations), len(cfg.Transport.Matrix), defaultGravity.Stay, defaultGravity.Exponent)
			gravity = &defaultGravity
		}
	}
	if gravity != nil {
		matrix, err := demography.GravityMatrix(cfg.Transport.KeyLocations, gravity.Stay, gravity.Exponent)
		if err != nil {
			return nil, err
		}
		cfg.Transport.Matrix = matrix
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	profile, err := demography.NewProfile(s.Demography, cfg.Transport.KeyLocations)
	if err != nil {
		return nil, fmt.Errorf("demography: %w", err)
	}
	arrivals, err := demography.NewArrivalProcess(s.Demography.Arrivals)
	if err != nil {
		return nil, fmt.Errorf("demography: %w", err)
	}

	var temperature sim.TemperatureSource = sim.ConstantTemperature(cfg.World.AverageTemperature)
	if s.Climate != nil {
		if s.Climate.File != "" {
			table, err := climate.LoadTable(s.Climate.File)
			if err != nil {
				return nil, err
			}
			temperature = table
		} else {
			series, err := climate.NewSeries(*s.Climate, cfg.Seed)
			if err != nil {
				return nil, err
			}
			temperature = series
		}
	}
	return &Built{Config: cfg, Drawer: profile, Arrivals: arrivals, Temperature: temperature}, nil
}

// YAML renders the scenario for storage alongside a run.
func (s *Scenario) YAML() (string, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encoding scenario: %w", err)
	}
	return string(out), nil
}
