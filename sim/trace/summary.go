package trace

import "gonum.org/v1/gonum/stat"

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalTransitions int
	Infections       int
	Deaths           int
	Recoveries       int
	MeanInfectedAge  float64
	StdInfectedAge   float64
	MeanDeathAge     float64
	DumpRows         int
	ByTransition     map[string]int // "from->to" → count
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		ByTransition: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalTransitions = len(st.Transitions)
	summary.DumpRows = len(st.Individuals)
	var infectedAges, deathAges []float64
	for _, r := range st.Transitions {
		summary.ByTransition[r.From+"->"+r.To]++
		switch r.Kind {
		case KindInfection, KindImported:
			summary.Infections++
			infectedAges = append(infectedAges, float64(r.Age))
		case KindDeath:
			summary.Deaths++
			deathAges = append(deathAges, float64(r.Age))
		case KindRecovery:
			summary.Recoveries++
		}
	}

	if len(infectedAges) > 0 {
		summary.MeanInfectedAge, summary.StdInfectedAge = stat.MeanStdDev(infectedAges, nil)
		if len(infectedAges) == 1 {
			summary.StdInfectedAge = 0
		}
	}
	if len(deathAges) > 0 {
		summary.MeanDeathAge = stat.Mean(deathAges, nil)
	}
	return summary
}
