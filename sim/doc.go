// Package sim provides the core discrete-time engine of episim, a spatial
// agent-based epidemic simulator.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - individual.go: Individual traits, health states and the step marks set on each transition
//   - transition.go: the per-step state machine (infection, onset, death, recovery)
//   - simulator.go: the step pipeline and its staged, atomic commit
//
// # Step Pipeline
//
// Every step runs, in order:
//  1. transport.go: key-location reassignment and jitter around the anchor
//  2. pressure.go, spatial.go: the virus pressure field over infectious individuals at their new locations
//  3. transition.go: one uniform draw per living individual against the frozen field
//  4. immigration.go: arrivals drawn through the injected TraitDrawer and ArrivalProcess
//  5. medical.go: budget-limited testing producing the observed view
//  6. population.go, metrics.go: recount by filtering and record a Snapshot
//
// # Architecture
//
// The sim package defines the engine and its collaborator interfaces;
// implementations live in sub-packages:
//   - sim/demography/: trait distributions, age tables, arrival processes, CSV loaders
//   - sim/climate/: temperature series
//   - sim/export/: CSV and SQLite snapshot sinks
//   - sim/trace/: per-individual trace recording
//
// Collaborators are passed to NewSimulator explicitly; nothing registers
// itself through init().
//
// # Randomness
//
// All draws come from PartitionedRNG streams keyed by subsystem, step and
// individual id, so a run is reproducible bit-for-bit from its seed for any
// worker count.
package sim
