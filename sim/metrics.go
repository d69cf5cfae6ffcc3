// Tracks per-step aggregate snapshots and run-level epidemic metrics such as
// the peak of the true and observed curves.

package sim

import (
	"fmt"
	"io"
)

// Snapshot is the aggregate state recorded after every committed step.
// Observed values come from the medical layer; everything prefixed True is
// ground truth.
type Snapshot struct {
	Step                int     `csv:"step" db:"step"`
	Population          int     `csv:"population" db:"population"`
	Living              int     `csv:"living" db:"living"`
	Susceptible         int     `csv:"susceptible" db:"susceptible"`
	TrueInfected        int     `csv:"true_infected" db:"true_infected"`
	TrueSymptomatic     int     `csv:"true_symptomatic" db:"true_symptomatic"`
	TrueRecovered       int     `csv:"true_recovered" db:"true_recovered"`
	TrueDead            int     `csv:"true_dead" db:"true_dead"`
	Tested              int     `csv:"tested" db:"tested"`
	ObservedInfected    int     `csv:"observed_infected" db:"observed_infected"`
	CumulativeConfirmed int     `csv:"cumulative_confirmed" db:"cumulative_confirmed"`
	Arrivals            int     `csv:"arrivals" db:"arrivals"`
	Budget              int     `csv:"budget" db:"budget"`
	Temperature         float64 `csv:"temperature" db:"temperature"`
	InfectiousRate      float64 `csv:"infectious_rate" db:"infectious_rate"`

	Ages []AgeCounts `csv:"-" db:"-"`
}

func newSnapshot(step int, c Counts, obs Observation, arrivals int, field *PressureField, temperature float64, ages []AgeCounts) Snapshot {
	return Snapshot{
		Step:                step,
		Population:          c.Total,
		Living:              c.Living,
		Susceptible:         c.Susceptible,
		TrueInfected:        c.Infected,
		TrueSymptomatic:     c.Symptomatic,
		TrueRecovered:       c.Recovered,
		TrueDead:            c.Dead,
		Tested:              c.Tested,
		ObservedInfected:    c.ObservedInfected,
		CumulativeConfirmed: c.CumulativeConfirmed,
		Arrivals:            arrivals,
		Budget:              obs.Budget,
		Temperature:         temperature,
		InfectiousRate:      field.InfectiousRate,
		Ages:                ages,
	}
}

// Metrics aggregates run-level statistics for final reporting.
type Metrics struct {
	Steps               int
	FinalPopulation     int
	PeakInfected        int
	PeakInfectedStep    int
	PeakObserved        int
	PeakObservedStep    int
	TotalDead           int
	TotalArrivals       int
	CumulativeConfirmed int
	EverInfected        int // individuals with at least one infection episode
}

// ComputeMetrics folds a snapshot series into run-level metrics.
func ComputeMetrics(snapshots []Snapshot, everInfected int) Metrics {
	m := Metrics{EverInfected: everInfected}
	for _, s := range snapshots {
		m.Steps = s.Step
		m.FinalPopulation = s.Population
		m.TotalDead = s.TrueDead
		m.TotalArrivals += s.Arrivals
		m.CumulativeConfirmed = s.CumulativeConfirmed
		if s.TrueInfected > m.PeakInfected {
			m.PeakInfected, m.PeakInfectedStep = s.TrueInfected, s.Step
		}
		if s.ObservedInfected > m.PeakObserved {
			m.PeakObserved, m.PeakObservedStep = s.ObservedInfected, s.Step
		}
	}
	return m
}

// AscertainmentRatio is the share of ever-infected individuals that were
// confirmed by testing. Zero without infections.
func (m Metrics) AscertainmentRatio() float64 {
	if m.EverInfected == 0 {
		return 0
	}
	return float64(m.CumulativeConfirmed) / float64(m.EverInfected)
}

// Print displays the run metrics.
func (m Metrics) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Metrics ===")
	fmt.Fprintf(w, "Steps                : %d\n", m.Steps)
	fmt.Fprintf(w, "Final Population     : %d\n", m.FinalPopulation)
	fmt.Fprintf(w, "Arrivals             : %d\n", m.TotalArrivals)
	fmt.Fprintf(w, "Ever Infected        : %d\n", m.EverInfected)
	fmt.Fprintf(w, "Peak Infected (true) : %d at step %d\n", m.PeakInfected, m.PeakInfectedStep)
	fmt.Fprintf(w, "Peak Observed        : %d at step %d\n", m.PeakObserved, m.PeakObservedStep)
	fmt.Fprintf(w, "Deaths               : %d\n", m.TotalDead)
	fmt.Fprintf(w, "Confirmed Cases      : %d\n", m.CumulativeConfirmed)
	fmt.Fprintf(w, "Ascertainment        : %.2f%%\n", 100*m.AscertainmentRatio())
}
