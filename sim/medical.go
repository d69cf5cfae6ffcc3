package sim

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

// Observation is the outcome of one step of testing.
type Observation struct {
	Step     int
	Budget   int
	Tested   int
	Positive int
}

// MedicalLayer selects which living individuals are tested each step and
// reveals their true infection state. Everyone else stays unobserved. The
// observed positives can never exceed the budget or the true infected count.
type MedicalLayer struct {
	cfg    MedicalConfig
	stream *Stream
	keys   []testKey
}

type testKey struct {
	key float64
	id  IndividualID
}

// NewMedicalLayer creates a layer drawing from the medical subsystem stream.
func NewMedicalLayer(cfg MedicalConfig, rng *PartitionedRNG) *MedicalLayer {
	return &MedicalLayer{cfg: cfg, stream: NewStream(rng.SeedFor(SubsystemMedical))}
}

// weight is the selection weight of ind under the configured policy.
func (m *MedicalLayer) weight(ind *Individual) float64 {
	if m.cfg.Policy == PolicySymptomaticWeighted && ind.State == StateInfectedSymptomatic {
		return m.cfg.SymptomaticWeight
	}
	return 1
}

// Observe tests up to the step budget among living individuals and marks the
// results on the arena. Selection is weighted sampling without replacement:
// each candidate gets key −ln(u)/w from its own (step, id) stream and the
// smallest keys win, so the choice is independent of iteration order.
func (m *MedicalLayer) Observe(step int, pop *Population) Observation {
	living, symptomatic := 0, 0
	for i := range pop.arena {
		if pop.arena[i].State.Alive() {
			living++
		}
		if pop.arena[i].State == StateInfectedSymptomatic {
			symptomatic++
		}
	}
	obs := Observation{Step: step, Budget: m.cfg.Budget.For(step, living)}
	pop.observedStep = step

	if obs.Budget <= 0 || living == 0 {
		if obs.Budget <= 0 && symptomatic > 0 {
			logrus.Warnf("[step %05d] testing budget is 0 with %d symptomatic individuals", step, symptomatic)
		}
		return obs
	}

	m.keys = m.keys[:0]
	for i := range pop.arena {
		ind := &pop.arena[i]
		if !ind.State.Alive() {
			continue
		}
		u := m.stream.At(step, ind.ID).Float64()
		m.keys = append(m.keys, testKey{key: -math.Log1p(-u) / m.weight(ind), id: ind.ID})
	}
	sort.Slice(m.keys, func(a, b int) bool {
		if m.keys[a].key != m.keys[b].key {
			return m.keys[a].key < m.keys[b].key
		}
		return m.keys[a].id < m.keys[b].id
	})

	n := min(obs.Budget, len(m.keys))
	for _, k := range m.keys[:n] {
		ind := &pop.arena[k.id]
		ind.LastTested = step
		ind.LastTestPositive = ind.State.Infectious()
		if ind.LastTestPositive {
			ind.EverConfirmed = true
			obs.Positive++
		}
	}
	obs.Tested = n
	return obs
}
