// Implements the discrete-time driver. Each step moves individuals,
// rebuilds the pressure field, evaluates health transitions, merges arrivals,
// runs the testing layer and records a snapshot.

package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/episim/sim/trace"
)

// stagedUpdate is the step-N+1 value of one individual, computed from
// step-N state before anything is written back.
type stagedUpdate struct {
	key  int
	next HealthState
}

// workerStreams holds the per-worker keyed generators.
type workerStreams struct {
	transport  *Stream
	transition *Stream
}

// Simulator is the core object that holds simulation state.
//
// Steps are strictly sequential. Within a step, movement and transitions are
// a data-parallel map over the arena that only reads step-N state; the
// results are staged and committed together, so a failed step leaves the
// population exactly as it was and a cancelled run always stops at a step
// boundary.
type Simulator struct {
	cfg Config

	rng         *PartitionedRNG
	population  *Population
	transport   *TransportModel
	rates       *RateModel
	fields      [2]*fieldBuilder // alternated so a failed step never touches the committed field
	medical     *MedicalLayer
	immigration *immigration
	temperature TemperatureSource

	workers        int
	streams        []workerStreams
	warnedFullScan bool
	staged         []stagedUpdate
	located        []Location

	step      int
	field     *PressureField
	snapshots []Snapshot
	trace     *trace.SimulationTrace
}

// NewSimulator validates cfg, seeds the initial population from drawer and
// infects the index cases at step 0. arrivals and temperature may be nil, in
// which case the population is closed and the temperature is
// cfg.World.AverageTemperature.
func NewSimulator(cfg Config, drawer TraitDrawer, arrivals ArrivalProcess, temperature TemperatureSource) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if drawer == nil {
		return nil, configErrorf("population", "a trait drawer is required")
	}
	if arrivals == nil {
		arrivals = NoArrivals
	}
	if temperature == nil {
		temperature = ConstantTemperature(cfg.World.AverageTemperature)
	}
	transport, err := NewTransportModel(cfg.Transport, cfg.World.Bounds)
	if err != nil {
		return nil, err
	}

	rng := NewPartitionedRNG(NewSimulationKey(cfg.Seed))
	s := &Simulator{
		cfg:         cfg,
		rng:         rng,
		population:  NewPopulation(cfg.Disease.AgeBrackets),
		transport:   transport,
		rates:       NewRateModel(cfg.Disease, cfg.Reinfection),
		fields:      [2]*fieldBuilder{newFieldBuilder(cfg.World.Bounds, cfg.Disease), newFieldBuilder(cfg.World.Bounds, cfg.Disease)},
		medical:     NewMedicalLayer(cfg.Medical, rng),
		temperature: temperature,
		workers:     cfg.Runtime.workers(),
	}
	s.immigration = &immigration{
		cfg:       cfg.Immigration,
		bounds:    cfg.World.Bounds,
		locations: transport.Len(),
		drawer:    drawer,
		arrivals:  arrivals,
		rng:       rng,
	}
	s.streams = make([]workerStreams, s.workers)
	for w := range s.streams {
		s.streams[w] = workerStreams{
			transport:  NewStream(rng.SeedFor(SubsystemTransport)),
			transition: NewStream(rng.SeedFor(SubsystemTransition)),
		}
	}
	if cfg.Trace.Enabled() {
		s.trace = trace.NewSimulationTrace(cfg.Trace)
	}

	if err := s.seed(drawer); err != nil {
		return nil, err
	}
	logrus.Infof("[step %05d] seeded %d individuals (%d infected) over %d key locations",
		0, s.population.Size(), s.population.InfectedCount(), transport.Len())
	return s, nil
}

// seed draws the initial population and the index cases.
func (s *Simulator) seed(drawer TraitDrawer) error {
	for i := 0; i < s.cfg.Population.Initial; i++ {
		id := IndividualID(i)
		ind, err := drawIndividual(id, 0, drawer, s.rng.ForIndividual(SubsystemSeeding, 0, id), s.cfg.World.Bounds, s.transport.Len())
		if err != nil {
			return fmt.Errorf("initial population: %w", err)
		}
		s.population.append(ind)
	}
	if k := s.cfg.Population.InitialInfected; k > 0 {
		perm := s.rng.ForStep(SubsystemSeeding, 0).Perm(s.cfg.Population.Initial)
		for _, i := range perm[:k] {
			ind := &s.population.arena[i]
			ind.infect(0)
			s.recordTransition(ind, StateSusceptible, trace.KindInfection, 0)
		}
	}
	s.population.Recount()
	return nil
}

// Step advances the simulation by one step and returns its snapshot. On
// error nothing is committed and the step counter does not move.
func (s *Simulator) Step() (Snapshot, error) {
	step := s.step + 1
	temperature := s.temperature.Temperature(step)
	if err := checkFinite("temperature", temperature); err != nil {
		return Snapshot{}, fmt.Errorf("step %d: %w", step, err)
	}
	if err := checkFinite("infectious rate", InfectiousRate(s.cfg.Disease, temperature)); err != nil {
		return Snapshot{}, fmt.Errorf("step %d: %w", step, err)
	}
	arena := s.population.arena
	n := len(arena)

	if cap(s.staged) < n {
		s.staged = make([]stagedUpdate, n, n+n/4)
		s.located = make([]Location, n, n+n/4)
	}
	s.staged = s.staged[:n]
	s.located = s.located[:n]

	// Phase 1: movement.
	err := parallelFor(s.workers, n, func(w, start, end int) error {
		stream := s.streams[w].transport
		for i := start; i < end; i++ {
			ind := &arena[i]
			if !ind.State.Alive() {
				s.staged[i].key, s.located[i] = ind.KeyLocation, ind.Location
				continue
			}
			s.staged[i].key, s.located[i] = s.transport.Move(ind, stream.At(step, ind.ID))
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("step %d: %w", step, err)
	}

	// Phase 2: the field is fully materialized before any transition reads it.
	field := s.fields[step%2].build(step, temperature, arena, s.located)
	if !s.warnedFullScan && field.index.FullScan() && field.Sources() >= s.cfg.Disease.FullScanBelow && s.cfg.Disease.NegligibleWeight > 0 {
		logrus.Warnf("[step %05d] kernel cutoff spans half the world: pressure field falls back to a full scan over %d sources", step, field.Sources())
		s.warnedFullScan = true
	}

	// Phase 3: transitions.
	err = parallelFor(s.workers, n, func(w, start, end int) error {
		stream := s.streams[w].transition
		for i := start; i < end; i++ {
			ind := &arena[i]
			if ind.State == StateDead {
				s.staged[i].next = StateDead
				continue
			}
			pressure := field.At(s.located[i])
			next, err := s.rates.Decide(ind, step, pressure, stream.At(step, ind.ID).Float64())
			if err != nil {
				return err
			}
			s.staged[i].next = next
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("step %d: %w", step, err)
	}

	// Phase 4: arrivals.
	arrivals, err := s.immigration.arrive(step, s.population.nextID())
	if err != nil {
		return Snapshot{}, err
	}

	// Commit.
	for i := range arena {
		ind := &arena[i]
		ind.KeyLocation = s.staged[i].key
		ind.Location = s.located[i]
		if from := ind.State; s.staged[i].next != from {
			applyTransition(ind, s.staged[i].next, step)
			s.recordTransition(ind, from, transitionKind(ind.State), step)
		}
	}
	for i := range arrivals {
		s.population.append(arrivals[i])
		if arrivals[i].State.Infectious() {
			s.recordTransition(&arrivals[i], StateSusceptible, trace.KindImported, step)
		}
	}

	obs := s.medical.Observe(step, s.population)
	s.population.Recount()
	s.step = step
	s.field = field

	snap := newSnapshot(step, s.population.Counts(), obs, len(arrivals), field, temperature, s.population.AgeBreakdown())
	s.snapshots = append(s.snapshots, snap)
	s.dump(step)

	logrus.Debugf("[step %05d] T=%.1f sources=%d infected=%d symptomatic=%d dead=%d observed=%d/%d arrivals=%d",
		step, temperature, field.Sources(), snap.TrueInfected, snap.TrueSymptomatic, snap.TrueDead,
		snap.ObservedInfected, snap.Tested, snap.Arrivals)
	return snap, nil
}

// Run executes the remaining cfg.Steps steps, checking ctx between steps.
// onStep, when non-nil, receives every snapshot as soon as it is committed;
// its error stops the run. On cancellation Run returns the snapshots
// completed so far together with ctx.Err().
func (s *Simulator) Run(ctx context.Context, onStep func(Snapshot) error) ([]Snapshot, error) {
	logrus.Infof("[step %05d] starting run: seed=%d steps=%d workers=%d", s.step, s.cfg.Seed, s.cfg.Steps, s.workers)
	for s.step < s.cfg.Steps {
		if err := ctx.Err(); err != nil {
			logrus.Warnf("[step %05d] run cancelled", s.step)
			return s.Snapshots(), err
		}
		snap, err := s.Step()
		if err != nil {
			return s.Snapshots(), err
		}
		if onStep != nil {
			if err := onStep(snap); err != nil {
				return s.Snapshots(), err
			}
		}
	}
	logrus.Infof("[step %05d] Simulation ended", s.step)
	return s.Snapshots(), nil
}

// ErrNotStarted is returned by Field before the first step.
var ErrNotStarted = errors.New("simulation has not run a step yet")

// Field returns the pressure field of the last committed step. The field
// shares a reused index with the simulator and is valid only until the next
// Step; it must not be retained across steps.
func (s *Simulator) Field() (*PressureField, error) {
	if s.field == nil {
		return nil, ErrNotStarted
	}
	return s.field, nil
}

// CurrentStep returns the last committed step, 0 before the first.
func (s *Simulator) CurrentStep() int { return s.step }

// Population exposes the population for read-only queries.
func (s *Simulator) Population() *Population { return s.population }

// Transport returns the transport model.
func (s *Simulator) Transport() *TransportModel { return s.transport }

// Snapshots returns a copy of the recorded snapshots.
func (s *Simulator) Snapshots() []Snapshot {
	return append([]Snapshot(nil), s.snapshots...)
}

// Trace returns the recorded trace, nil when tracing is off.
func (s *Simulator) Trace() *trace.SimulationTrace { return s.trace }

// Metrics folds the recorded snapshots into run-level metrics.
func (s *Simulator) Metrics() Metrics {
	ever := 0
	for i := range s.population.arena {
		if s.population.arena[i].Infections > 0 {
			ever++
		}
	}
	return ComputeMetrics(s.snapshots, ever)
}

func transitionKind(to HealthState) trace.TransitionKind {
	switch to {
	case StateDead:
		return trace.KindDeath
	case StateInfectedSymptomatic:
		return trace.KindOnset
	case StateRecovered:
		return trace.KindRecovery
	default:
		return trace.KindInfection
	}
}

func (s *Simulator) recordTransition(ind *Individual, from HealthState, kind trace.TransitionKind, step int) {
	if s.trace == nil {
		return
	}
	s.trace.RecordTransition(trace.TransitionRecord{
		Step: step,
		ID:   int(ind.ID),
		Age:  ind.Age,
		Kind: kind,
		From: string(from),
		To:   string(ind.State),
	})
}

func (s *Simulator) dump(step int) {
	if s.trace == nil || !s.cfg.Trace.DumpAt(step) {
		return
	}
	for i := range s.population.arena {
		ind := &s.population.arena[i]
		s.trace.RecordIndividual(trace.IndividualRecord{
			Step:          step,
			ID:            int(ind.ID),
			X:             ind.Location.X,
			Y:             ind.Location.Y,
			KeyLocation:   ind.KeyLocation,
			Age:           ind.Age,
			State:         string(ind.State),
			InfectionStep: ind.InfectionStep,
			SymptomStep:   ind.SymptomStep,
			DeathStep:     ind.DeathStep,
			Observed:      ind.LastTested == step,
		})
	}
}

func checkFinite(quantity string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &NumericDomainError{ID: stepWide, Quantity: quantity, Value: v, Err: ErrNonFinite}
	}
	return nil
}
