package demography

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Spec is the demographic section of a scenario: who individuals are and how
// many arrive.
type Spec struct {
	AgeGroups      []AgeGroup `yaml:"age_groups,omitempty"`
	AgeGroupsFile  string     `yaml:"age_groups_file,omitempty"` // CSV with min_age,max_age,proportion
	PlacementSigma float64    `yaml:"placement_sigma"`           // meters of initial scatter around the anchor

	Vulnerability   DistSpec `yaml:"vulnerability"`
	Immunity        DistSpec `yaml:"immunity"`
	Mobility        DistSpec `yaml:"mobility"`
	InfectionRadius DistSpec `yaml:"infection_radius"`

	Arrivals ArrivalSpec `yaml:"arrivals"`
}

// DistSpec parameterizes a trait distribution.
type DistSpec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// ArrivalSpec parameterizes the per-step arrival count.
type ArrivalSpec struct {
	Process  string  `yaml:"process"`
	PerStep  int     `yaml:"per_step,omitempty"` // constant
	Rate     float64 `yaml:"rate,omitempty"`     // poisson mean per step
	Schedule []int   `yaml:"schedule,omitempty"` // schedule, step 1 first
}

var validDistTypes = map[string]bool{
	"beta": true, "uniform": true, "normal": true, "lognormal": true, "constant": true,
}

// DefaultSpec returns traits loosely centred on a general population: mild
// vulnerability, low prior immunity, high mobility and a 50 m radius.
func DefaultSpec() Spec {
	return Spec{
		AgeGroups:      DefaultAgeGroups(),
		PlacementSigma: 400,
		Vulnerability:  DistSpec{Type: "beta", Params: map[string]float64{"alpha": 2, "beta": 5}},
		Immunity:       DistSpec{Type: "beta", Params: map[string]float64{"alpha": 1, "beta": 9}},
		Mobility:       DistSpec{Type: "uniform", Params: map[string]float64{"min": 0.5, "max": 1}},
		InfectionRadius: DistSpec{Type: "normal", Params: map[string]float64{
			"mean": 50, "std_dev": 10, "min": 10, "max": 100,
		}},
		Arrivals: ArrivalSpec{Process: ArrivalNone},
	}
}

// Validate checks every field of the demography section.
func (s *Spec) Validate() error {
	if !(s.PlacementSigma >= 0) || math.IsInf(s.PlacementSigma, 0) {
		return fmt.Errorf("placement_sigma must be a finite non-negative number, got %v", s.PlacementSigma)
	}
	for _, d := range []struct {
		name string
		spec *DistSpec
	}{
		{"vulnerability", &s.Vulnerability},
		{"immunity", &s.Immunity},
		{"mobility", &s.Mobility},
		{"infection_radius", &s.InfectionRadius},
	} {
		if err := validateDistSpec(d.name, d.spec); err != nil {
			return err
		}
	}
	if s.InfectionRadius.Type == "normal" {
		if lo, ok := s.InfectionRadius.Params["min"]; !ok || lo <= 0 {
			logrus.Warnf("infection_radius: normal distribution without a positive min may draw radii <= 0, which abort the run")
		}
	}
	if _, err := NewArrivalProcess(s.Arrivals); err != nil {
		return err
	}
	if len(s.AgeGroups) > 0 && s.AgeGroupsFile != "" {
		return fmt.Errorf("age_groups and age_groups_file are mutually exclusive")
	}
	return nil
}

func validateDistSpec(prefix string, d *DistSpec) error {
	if !validDistTypes[d.Type] {
		return fmt.Errorf("%s: unknown distribution type %q; valid: beta, uniform, normal, lognormal, constant", prefix, d.Type)
	}
	for name, val := range d.Params {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%s.params.%s must be a finite number, got %f", prefix, name, val)
		}
	}
	return nil
}
