// Package trace provides per-individual trace recording for downstream
// analysis and visualization.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// TransitionKind classifies a health-state transition.
type TransitionKind string

const (
	KindInfection TransitionKind = "infection"
	KindOnset     TransitionKind = "onset"
	KindDeath     TransitionKind = "death"
	KindRecovery  TransitionKind = "recovery"
	KindImported  TransitionKind = "imported"
)

// TransitionRecord captures a single health-state transition.
type TransitionRecord struct {
	Step int            `csv:"step"`
	ID   int            `csv:"id"`
	Age  int            `csv:"age"`
	Kind TransitionKind `csv:"kind"`
	From string         `csv:"from"`
	To   string         `csv:"to"`
}

// IndividualRecord is one row of a full state dump.
type IndividualRecord struct {
	Step          int     `csv:"step"`
	ID            int     `csv:"id"`
	X             float64 `csv:"x"`
	Y             float64 `csv:"y"`
	KeyLocation   int     `csv:"key_location"`
	Age           int     `csv:"age"`
	State         string  `csv:"state"`
	InfectionStep int     `csv:"infection_step"`
	SymptomStep   int     `csv:"symptom_step"`
	DeathStep     int     `csv:"death_step"`
	Observed      bool    `csv:"observed"`
}
