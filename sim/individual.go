// Defines the Individual struct that models one person in the simulation.
// Tracks location, immutable traits, health state and the step marks set on
// each health transition.

package sim

import (
	"fmt"
	"math"
)

// IndividualID is the stable arena index of an individual.
type IndividualID int

// NoStep marks a transition that has not happened.
const NoStep = -1

// HealthState represents the lifecycle state of an individual.
type HealthState string

const (
	StateSusceptible          HealthState = "susceptible"
	StateInfectedAsymptomatic HealthState = "infected-asymptomatic"
	StateInfectedSymptomatic  HealthState = "infected-symptomatic"
	StateRecovered            HealthState = "recovered"
	StateDead                 HealthState = "dead"
)

// Infectious reports whether the state contributes to the pressure field.
func (s HealthState) Infectious() bool {
	return s == StateInfectedAsymptomatic || s == StateInfectedSymptomatic
}

// Alive reports whether the state is anything but Dead.
func (s HealthState) Alive() bool {
	return s != StateDead
}

// Traits are the per-individual values drawn once at creation.
type Traits struct {
	Age             int
	Location        Location
	KeyLocation     int
	Vulnerability   float64 // scales death probability, [0,1]
	Immunity        float64 // scales infection probability down, [0,1]
	Mobility        float64 // scales movement variance, [0,1]
	InfectionRadius float64 // kernel bandwidth while infectious, > 0
}

// Individual models one person. Individuals are stored by value in the
// population arena and never removed; Dead is terminal.
type Individual struct {
	ID IndividualID

	Location    Location
	KeyLocation int

	Age             int
	Vulnerability   float64
	Immunity        float64
	Mobility        float64
	InfectionRadius float64

	State HealthState

	InfectionStep int // NoStep until infected
	SymptomStep   int // NoStep until symptomatic
	DeathStep     int // NoStep until dead
	RecoveryStep  int // NoStep until recovered
	Infections    int // number of infection episodes

	ArrivalStep      int  // step the individual joined; 0 for the initial population
	LastTested       int  // NoStep until tested
	LastTestPositive bool // result of the test at LastTested
	EverConfirmed    bool // observed positive at least once
}

// newIndividual validates traits and builds a Susceptible individual.
func newIndividual(id IndividualID, t Traits, arrival int) (Individual, error) {
	if !(t.InfectionRadius > 0) || math.IsInf(t.InfectionRadius, 0) {
		return Individual{}, &NumericDomainError{ID: id, Quantity: "infection_radius", Value: t.InfectionRadius}
	}
	for _, q := range []struct {
		name string
		v    float64
	}{
		{"vulnerability", t.Vulnerability},
		{"immunity", t.Immunity},
		{"mobility", t.Mobility},
	} {
		if !(q.v >= 0 && q.v <= 1) {
			return Individual{}, &NumericDomainError{ID: id, Quantity: q.name, Value: q.v}
		}
	}
	if t.Age < 0 {
		return Individual{}, &NumericDomainError{ID: id, Quantity: "age", Value: float64(t.Age)}
	}
	return Individual{
		ID:              id,
		Location:        t.Location,
		KeyLocation:     t.KeyLocation,
		Age:             t.Age,
		Vulnerability:   t.Vulnerability,
		Immunity:        t.Immunity,
		Mobility:        t.Mobility,
		InfectionRadius: t.InfectionRadius,
		State:           StateSusceptible,
		InfectionStep:   NoStep,
		SymptomStep:     NoStep,
		DeathStep:       NoStep,
		RecoveryStep:    NoStep,
		ArrivalStep:     arrival,
		LastTested:      NoStep,
	}, nil
}

// infect starts an infection episode. A Recovered individual (reinfection)
// starts a fresh episode, so the episode marks are cleared first.
func (ind *Individual) infect(step int) {
	switch ind.State {
	case StateSusceptible:
		if ind.InfectionStep != NoStep {
			panic(fmt.Sprintf("individual %d: infection step already set to %d", ind.ID, ind.InfectionStep))
		}
	case StateRecovered:
		ind.SymptomStep = NoStep
		ind.RecoveryStep = NoStep
	default:
		panic(fmt.Sprintf("individual %d: cannot infect from state %s", ind.ID, ind.State))
	}
	ind.State = StateInfectedAsymptomatic
	ind.InfectionStep = step
	ind.Infections++
}

func (ind *Individual) developSymptoms(step int) {
	if ind.State != StateInfectedAsymptomatic || ind.SymptomStep != NoStep {
		panic(fmt.Sprintf("individual %d: cannot develop symptoms from state %s", ind.ID, ind.State))
	}
	ind.State = StateInfectedSymptomatic
	ind.SymptomStep = step
}

func (ind *Individual) die(step int) {
	if !ind.State.Infectious() || ind.DeathStep != NoStep {
		panic(fmt.Sprintf("individual %d: cannot die from state %s", ind.ID, ind.State))
	}
	ind.State = StateDead
	ind.DeathStep = step
}

func (ind *Individual) convalesce(step int) {
	if ind.State != StateInfectedSymptomatic {
		panic(fmt.Sprintf("individual %d: cannot recover from state %s", ind.ID, ind.State))
	}
	ind.State = StateRecovered
	ind.RecoveryStep = step
}

// String returns a human-readable representation of an Individual.
func (ind Individual) String() string {
	return fmt.Sprintf("Individual: (ID: %d, State: %s, Age: %d, Location: %s)", ind.ID, ind.State, ind.Age, ind.Location)
}
