package trace

// TraceLevel controls the verbosity of per-individual tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelTransitions captures every health-state transition.
	TraceLevelTransitions TraceLevel = "transitions"
	// TraceLevelIndividuals captures transitions plus a full per-individual
	// state dump every Every steps.
	TraceLevelIndividuals TraceLevel = "individuals"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:        true,
	TraceLevelTransitions: true,
	TraceLevelIndividuals: true,
	"":                    true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel `yaml:"level"`
	Every int        `yaml:"every"` // dump interval in steps under TraceLevelIndividuals; 0 = every step
}

// Enabled reports whether anything is recorded.
func (c TraceConfig) Enabled() bool {
	return c.Level == TraceLevelTransitions || c.Level == TraceLevelIndividuals
}

// DumpAt reports whether a full individual dump is due at step.
func (c TraceConfig) DumpAt(step int) bool {
	if c.Level != TraceLevelIndividuals {
		return false
	}
	return c.Every <= 1 || step%c.Every == 0
}

// SimulationTrace collects records during a run.
type SimulationTrace struct {
	Config      TraceConfig
	Transitions []TransitionRecord
	Individuals []IndividualRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:      config,
		Transitions: make([]TransitionRecord, 0),
		Individuals: make([]IndividualRecord, 0),
	}
}

// RecordTransition appends a transition record.
func (st *SimulationTrace) RecordTransition(record TransitionRecord) {
	st.Transitions = append(st.Transitions, record)
}

// RecordIndividual appends one row of a state dump.
func (st *SimulationTrace) RecordIndividual(record IndividualRecord) {
	st.Individuals = append(st.Individuals, record)
}
