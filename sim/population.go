package sim

import "fmt"

// Counts are the cached aggregates of a population. They are recomputed by
// filtering the arena after every committed step and never updated
// incrementally.
type Counts struct {
	Total               int
	Living              int
	Susceptible         int
	Infected            int // asymptomatic + symptomatic
	Symptomatic         int
	Recovered           int
	Dead                int
	Tested              int // tested at the last observed step
	ObservedInfected    int // tested positive at the last observed step
	CumulativeConfirmed int // ever observed positive
}

// AgeCounts is the age accounting of one bracket.
type AgeCounts struct {
	MinAge   int
	MaxAge   int
	Living   int
	Infected int
	Dead     int
}

// Population is an arena of individuals addressed by IndividualID, plus the
// ordered id list and cached aggregates. Individuals are never removed.
type Population struct {
	arena    []Individual
	order    []IndividualID
	brackets []AgeBracket

	observedStep int
	counts       Counts
	ages         []AgeCounts
}

// NewPopulation creates an empty population. brackets drive the age
// accounting and may be nil.
func NewPopulation(brackets []AgeBracket) *Population {
	return &Population{brackets: brackets, observedStep: NoStep}
}

// nextID returns the id the next added individual will get.
func (p *Population) nextID() IndividualID {
	return IndividualID(len(p.arena))
}

// Add validates traits and appends a Susceptible individual.
func (p *Population) Add(t Traits, arrival int) (IndividualID, error) {
	id := p.nextID()
	ind, err := newIndividual(id, t, arrival)
	if err != nil {
		return 0, err
	}
	p.append(ind)
	return id, nil
}

func (p *Population) append(ind Individual) {
	if ind.ID != p.nextID() {
		panic(fmt.Sprintf("population: appending id %d, want %d", ind.ID, p.nextID()))
	}
	p.arena = append(p.arena, ind)
	p.order = append(p.order, ind.ID)
}

// Get returns a copy of the individual with the given id.
func (p *Population) Get(id IndividualID) (Individual, bool) {
	if id < 0 || int(id) >= len(p.arena) {
		return Individual{}, false
	}
	return p.arena[id], true
}

// IDs returns the ordered ids.
func (p *Population) IDs() []IndividualID {
	return append([]IndividualID(nil), p.order...)
}

// Individuals returns a copy of every individual in id order.
func (p *Population) Individuals() []Individual {
	return append([]Individual(nil), p.arena...)
}

// Size returns the number of individuals ever added, dead included.
func (p *Population) Size() int { return len(p.arena) }

// Recount rebuilds the cached aggregates from the arena.
func (p *Population) Recount() {
	c := Counts{Total: len(p.arena)}
	ages := make([]AgeCounts, len(p.brackets))
	for i, b := range p.brackets {
		ages[i] = AgeCounts{MinAge: b.MinAge, MaxAge: b.MaxAge}
	}
	for i := range p.arena {
		ind := &p.arena[i]
		switch ind.State {
		case StateSusceptible:
			c.Susceptible++
		case StateInfectedAsymptomatic:
			c.Infected++
		case StateInfectedSymptomatic:
			c.Infected++
			c.Symptomatic++
		case StateRecovered:
			c.Recovered++
		case StateDead:
			c.Dead++
		}
		if ind.State.Alive() {
			c.Living++
		}
		if p.observedStep != NoStep && ind.LastTested == p.observedStep {
			c.Tested++
			if ind.LastTestPositive {
				c.ObservedInfected++
			}
		}
		if ind.EverConfirmed {
			c.CumulativeConfirmed++
		}
		if a := ageSlot(ages, ind.Age); a != nil {
			if ind.State.Alive() {
				a.Living++
			}
			if ind.State.Infectious() {
				a.Infected++
			}
			if ind.State == StateDead {
				a.Dead++
			}
		}
	}
	p.counts = c
	p.ages = ages
}

func ageSlot(ages []AgeCounts, age int) *AgeCounts {
	for i := range ages {
		if age >= ages[i].MinAge && age <= ages[i].MaxAge {
			return &ages[i]
		}
	}
	return nil
}

// Counts returns the cached aggregates.
func (p *Population) Counts() Counts { return p.counts }

// AgeBreakdown returns a copy of the cached age accounting.
func (p *Population) AgeBreakdown() []AgeCounts {
	return append([]AgeCounts(nil), p.ages...)
}

// InfectedCount returns the true number of infected (asymptomatic or
// symptomatic) individuals.
func (p *Population) InfectedCount() int { return p.counts.Infected }

// SymptomaticCount returns the true number of symptomatic individuals.
func (p *Population) SymptomaticCount() int { return p.counts.Symptomatic }

// DeathCount returns the number of dead individuals.
func (p *Population) DeathCount() int { return p.counts.Dead }

// ObservedInfectedCount returns the positives of the last observed step.
func (p *Population) ObservedInfectedCount() int { return p.counts.ObservedInfected }

// LivingCount returns the number of living individuals.
func (p *Population) LivingCount() int { return p.counts.Living }
