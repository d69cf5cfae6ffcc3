package sim

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical snapshots, regardless of worker count.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemSeeding draws the initial population and the index cases.
	SubsystemSeeding = "seeding"

	// SubsystemTransport drives key-location reassignment and coordinate jitter.
	SubsystemTransport = "transport"

	// SubsystemTransition drives the per-individual Bernoulli health transitions.
	SubsystemTransition = "transition"

	// SubsystemImmigration drives arrival counts and arrival traits.
	SubsystemImmigration = "immigration"

	// SubsystemMedical drives test selection.
	SubsystemMedical = "medical"
)

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated random streams.
//
// Derivation formula:
//   - subsystem seed: masterSeed XOR fnv1a64(subsystemName)
//   - per-step stream: PCG(subsystem seed, 1<<63 | step)
//   - per-individual stream: PCG(subsystem seed, step<<32 | id)
//
// Keyed streams are stateless functions of their key, so the order in which
// goroutines ask for them does not change any draw.
//
// Thread-safety: the lookup cache is NOT thread-safe. Call SeedFor from a
// single goroutine and hand the derived seeds to workers (see Stream).
type PartitionedRNG struct {
	key   SimulationKey
	seeds map[string]uint64
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:   key,
		seeds: make(map[string]uint64),
	}
}

// SeedFor returns the derived seed of the named subsystem (cached).
func (p *PartitionedRNG) SeedFor(name string) uint64 {
	if s, ok := p.seeds[name]; ok {
		return s
	}
	s := uint64(int64(p.key) ^ fnv1a64(name))
	p.seeds[name] = s
	return s
}

// ForStep returns a fresh generator for one subsystem at one step.
// Never returns nil.
func (p *PartitionedRNG) ForStep(name string, step int) *rand.Rand {
	return rand.New(rand.NewPCG(p.SeedFor(name), stepStream(step)))
}

// ForIndividual returns a fresh generator keyed by (subsystem, step, id).
// Never returns nil.
func (p *PartitionedRNG) ForIndividual(name string, step int, id IndividualID) *rand.Rand {
	return rand.New(rand.NewPCG(p.SeedFor(name), individualStream(step, id)))
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// Stream is a reusable per-worker generator that can be rekeyed to any
// (step, id) pair without allocating. Draw sequences match ForIndividual.
type Stream struct {
	seed uint64
	pcg  *rand.PCG
	rng  *rand.Rand
}

// NewStream creates a Stream for the given subsystem seed.
func NewStream(seed uint64) *Stream {
	pcg := rand.NewPCG(seed, 0)
	return &Stream{seed: seed, pcg: pcg, rng: rand.New(pcg)}
}

// At rekeys the stream to (step, id) and returns the generator.
func (s *Stream) At(step int, id IndividualID) *rand.Rand {
	s.pcg.Seed(s.seed, individualStream(step, id))
	return s.rng
}

// Source exposes the underlying PCG so gonum distributions can draw from the
// same keyed sequence.
func (s *Stream) Source() rand.Source {
	return s.pcg
}

// Stream keys pack the step into 31 bits and the id into 32 bits. Runs
// longer than MaxSteps or populations beyond MaxIndividuals would reuse
// streams, so both are rejected up front.
const (
	MaxSteps       = math.MaxInt32 - 1
	MaxIndividuals = math.MaxInt32
)

// Per-step and per-individual stream ids never overlap: the top bit is
// reserved for per-step streams.
func stepStream(step int) uint64 {
	return 1<<63 | uint64(uint32(step))
}

func individualStream(step int, id IndividualID) uint64 {
	return uint64(uint32(step)&0x7fffffff)<<32 | uint64(uint32(id))
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
