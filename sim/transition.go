package sim

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// bracketRates caches the onset distribution of one age bracket.
type bracketRates struct {
	AgeBracket
	onset distuv.Gamma
}

// RateModel evaluates the per-step transition probabilities of the
// individual state machine.
//
// Evaluation order per living individual, one uniform draw u per step:
//   - Susceptible: u < pInfect → Infected-Asymptomatic
//   - Infected-Asymptomatic: u < pDeath·f → Dead, else u < pDeath·f + hazard·(1−pDeath·f) → Infected-Symptomatic
//   - Infected-Symptomatic: u < pDeath → Dead, else past RecoveryDays → Recovered
//   - Recovered: terminal, or treated as Susceptible with extra protection under reinfection
//   - Dead: terminal
//
// The bands never overlap, so at most one transition happens per step.
type RateModel struct {
	disease     DiseaseConfig
	reinfection ReinfectionConfig
	brackets    []bracketRates
}

// NewRateModel builds a RateModel from validated configuration.
func NewRateModel(disease DiseaseConfig, reinfection ReinfectionConfig) *RateModel {
	m := &RateModel{disease: disease, reinfection: reinfection}
	for _, b := range disease.AgeBrackets {
		m.brackets = append(m.brackets, bracketRates{
			AgeBracket: b,
			// Beta is the rate parameter: mean = Alpha / Beta.
			onset: distuv.Gamma{Alpha: b.OnsetShape, Beta: b.OnsetShape / b.OnsetMeanDays},
		})
	}
	return m
}

// bracket returns the last bracket starting at or below age; ages below the
// first bracket use the first one.
func (m *RateModel) bracket(age int) *bracketRates {
	chosen := &m.brackets[0]
	for i := range m.brackets {
		if m.brackets[i].MinAge <= age {
			chosen = &m.brackets[i]
		}
	}
	return chosen
}

// InfectionProbability is 1 − exp(−scale · pressure · (1 − immunity)):
// increasing in pressure, decreasing in immunity, 0 at zero pressure.
func (m *RateModel) InfectionProbability(pressure, immunity float64) float64 {
	return 1 - math.Exp(-m.disease.InfectionScale*pressure*(1-immunity))
}

// DeathProbability is the per-step death probability of a symptomatic case.
func (m *RateModel) DeathProbability(age int, vulnerability float64) float64 {
	return m.bracket(age).DeathRate * vulnerability
}

// AsymptomaticDeathProbability never exceeds DeathProbability because the
// factor is validated to lie in [0,1].
func (m *RateModel) AsymptomaticDeathProbability(age int, vulnerability float64) float64 {
	return m.DeathProbability(age, vulnerability) * m.disease.AsymptomaticDeathFactor
}

// OnsetHazard is the probability of symptom onset during step elapsed given
// none before it: (F(e) − F(e−1)) / (1 − F(e−1)) under the bracket's Gamma
// duration distribution.
func (m *RateModel) OnsetHazard(age, elapsed int) float64 {
	if elapsed <= 0 {
		return 0
	}
	onset := m.bracket(age).onset
	prev := onset.CDF(float64(elapsed - 1))
	survival := 1 - prev
	if survival <= 1e-12 {
		return 1
	}
	return math.Min(1, (onset.CDF(float64(elapsed))-prev)/survival)
}

// Decide returns the state ind moves to at step given the local pressure
// and the individual's uniform draw u in [0,1).
func (m *RateModel) Decide(ind *Individual, step int, pressure, u float64) (HealthState, error) {
	switch ind.State {
	case StateSusceptible:
		return m.decideInfection(ind, pressure, ind.Immunity, u)

	case StateRecovered:
		if !m.reinfection.Enabled {
			return StateRecovered, nil
		}
		immunity := math.Min(1, ind.Immunity+m.reinfection.Protection)
		return m.decideInfection(ind, pressure, immunity, u)

	case StateInfectedAsymptomatic:
		pDeath := m.AsymptomaticDeathProbability(ind.Age, ind.Vulnerability)
		if err := checkProbability(ind.ID, "asymptomatic death probability", pDeath); err != nil {
			return ind.State, err
		}
		hazard := m.OnsetHazard(ind.Age, step-ind.InfectionStep)
		if err := checkProbability(ind.ID, "symptom onset probability", hazard); err != nil {
			return ind.State, err
		}
		switch {
		case u < pDeath:
			return StateDead, nil
		case u < pDeath+hazard*(1-pDeath):
			return StateInfectedSymptomatic, nil
		}
		return ind.State, nil

	case StateInfectedSymptomatic:
		pDeath := m.DeathProbability(ind.Age, ind.Vulnerability)
		if err := checkProbability(ind.ID, "death probability", pDeath); err != nil {
			return ind.State, err
		}
		switch {
		case u < pDeath:
			return StateDead, nil
		case step-ind.SymptomStep >= m.disease.RecoveryDays:
			return StateRecovered, nil
		}
		return ind.State, nil
	}
	return ind.State, nil
}

func (m *RateModel) decideInfection(ind *Individual, pressure, immunity, u float64) (HealthState, error) {
	p := m.InfectionProbability(pressure, immunity)
	if err := checkProbability(ind.ID, "infection probability", p); err != nil {
		return ind.State, err
	}
	if u < p {
		return StateInfectedAsymptomatic, nil
	}
	return ind.State, nil
}

// checkProbability fails fast on NaN or values outside [0,1].
func checkProbability(id IndividualID, name string, p float64) error {
	if math.IsNaN(p) {
		return &NumericDomainError{ID: id, Quantity: name, Value: p, Err: ErrNaNProbability}
	}
	if p < 0 || p > 1 {
		return &NumericDomainError{ID: id, Quantity: name, Value: p}
	}
	return nil
}

// applyTransition commits a decided state change and sets the matching step
// mark.
func applyTransition(ind *Individual, to HealthState, step int) {
	if to == ind.State {
		return
	}
	switch to {
	case StateInfectedAsymptomatic:
		ind.infect(step)
	case StateInfectedSymptomatic:
		ind.developSymptoms(step)
	case StateDead:
		ind.die(step)
	case StateRecovered:
		ind.convalesce(step)
	}
}
