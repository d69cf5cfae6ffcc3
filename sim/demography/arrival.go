package demography

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inference-sim/episim/sim"
)

// Arrival process names.
const (
	ArrivalNone     = "none"
	ArrivalConstant = "constant"
	ArrivalPoisson  = "poisson"
	ArrivalSchedule = "schedule"
)

// MaxPoissonRate bounds the Poisson mean so every draw converts to int.
const MaxPoissonRate = 1e9

// PoissonArrivals draws a Poisson(rate) arrival count every step.
type PoissonArrivals struct {
	rate float64
}

func (p *PoissonArrivals) Count(_ int, rng *rand.Rand) int {
	if p.rate == 0 {
		return 0
	}
	return int(distuv.Poisson{Lambda: p.rate, Src: rng}.Rand())
}

// ScheduledArrivals admits Counts[step-1] individuals at step. Once the
// schedule runs out the population is closed: the last value does not repeat.
type ScheduledArrivals struct {
	counts []int
}

func (s *ScheduledArrivals) Count(step int, _ *rand.Rand) int {
	if step < 1 || step > len(s.counts) {
		return 0
	}
	return s.counts[step-1]
}

func arrivalErrorf(field, format string, args ...any) *sim.ConfigurationError {
	return &sim.ConfigurationError{Field: "demography.arrivals." + field, Reason: fmt.Sprintf(format, args...)}
}

// NewArrivalProcess creates a sim.ArrivalProcess from an ArrivalSpec.
// Invalid specs return a *sim.ConfigurationError.
func NewArrivalProcess(spec ArrivalSpec) (sim.ArrivalProcess, error) {
	switch spec.Process {
	case "", ArrivalNone:
		return sim.NoArrivals, nil
	case ArrivalConstant:
		if spec.PerStep < 0 {
			return nil, arrivalErrorf("per_step", "must be non-negative, got %d", spec.PerStep)
		}
		return sim.FixedArrivals(spec.PerStep), nil
	case ArrivalPoisson:
		if !(spec.Rate >= 0) || spec.Rate > MaxPoissonRate || math.IsInf(spec.Rate, 0) {
			return nil, arrivalErrorf("rate", "must be in [0, %g], got %v", float64(MaxPoissonRate), spec.Rate)
		}
		return &PoissonArrivals{rate: spec.Rate}, nil
	case ArrivalSchedule:
		for i, c := range spec.Schedule {
			if c < 0 {
				return nil, arrivalErrorf(fmt.Sprintf("schedule[%d]", i), "must be non-negative, got %d", c)
			}
		}
		return &ScheduledArrivals{counts: append([]int(nil), spec.Schedule...)}, nil
	default:
		return nil, arrivalErrorf("process", "unknown arrival process %q; valid: none, constant, poisson, schedule", spec.Process)
	}
}
