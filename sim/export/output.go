// Package export writes simulation results for downstream analysis: CSV
// files for spreadsheets and plotting, and a SQLite store for comparing runs.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/inference-sim/episim/sim"
	"github.com/inference-sim/episim/sim/trace"
)

// AgeRow is one age bracket of one step's snapshot.
type AgeRow struct {
	Step     int `csv:"step" db:"step"`
	MinAge   int `csv:"min_age" db:"min_age"`
	MaxAge   int `csv:"max_age" db:"max_age"`
	Living   int `csv:"living" db:"living"`
	Infected int `csv:"infected" db:"infected"`
	Dead     int `csv:"dead" db:"dead"`
}

// AgeRows flattens the age accounting of a snapshot.
func AgeRows(s sim.Snapshot) []AgeRow {
	rows := make([]AgeRow, 0, len(s.Ages))
	for _, a := range s.Ages {
		rows = append(rows, AgeRow{Step: s.Step, MinAge: a.MinAge, MaxAge: a.MaxAge, Living: a.Living, Infected: a.Infected, Dead: a.Dead})
	}
	return rows
}

// csvFile appends records to one CSV file, writing the header once.
type csvFile struct {
	f             *os.File
	headerWritten bool
}

func (c *csvFile) write(records any) error {
	if !c.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, c.f); err != nil {
			return err
		}
		c.headerWritten = true
		return nil
	}
	// Subsequent writes skip headers
	return gocsv.MarshalWithoutHeaders(records, c.f)
}

// OutputManager streams per-step results into CSV files in one directory:
// snapshots.csv, ages.csv and, when tracing, transitions.csv and
// individuals.csv.
type OutputManager struct {
	dir       string
	snapshots *csvFile
	ages      *csvFile
}

// NewOutputManager creates the output directory and the per-step files.
// Returns nil if dir is empty (output disabled); every method is a no-op on a
// nil manager.
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	f, err := os.Create(filepath.Join(dir, "snapshots.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating snapshots.csv: %w", err)
	}
	om.snapshots = &csvFile{f: f}

	f, err = os.Create(filepath.Join(dir, "ages.csv"))
	if err != nil {
		om.snapshots.f.Close()
		return nil, fmt.Errorf("creating ages.csv: %w", err)
	}
	om.ages = &csvFile{f: f}
	return om, nil
}

// Dir returns the output directory.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// WriteSnapshot appends one step to snapshots.csv and ages.csv.
func (om *OutputManager) WriteSnapshot(s sim.Snapshot) error {
	if om == nil {
		return nil
	}
	if err := om.snapshots.write([]sim.Snapshot{s}); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if rows := AgeRows(s); len(rows) > 0 {
		if err := om.ages.write(rows); err != nil {
			return fmt.Errorf("writing age counts: %w", err)
		}
	}
	return nil
}

// WriteTrace writes the trace records in one pass at the end of a run.
func (om *OutputManager) WriteTrace(st *trace.SimulationTrace) error {
	if om == nil || st == nil {
		return nil
	}
	if len(st.Transitions) > 0 {
		if err := writeAll(filepath.Join(om.dir, "transitions.csv"), st.Transitions); err != nil {
			return fmt.Errorf("writing transitions: %w", err)
		}
	}
	if len(st.Individuals) > 0 {
		if err := writeAll(filepath.Join(om.dir, "individuals.csv"), st.Individuals); err != nil {
			return fmt.Errorf("writing individuals: %w", err)
		}
	}
	return nil
}

// Close closes all open files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	for _, c := range []*csvFile{om.snapshots, om.ages} {
		if err := c.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func writeAll(path string, records any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gocsv.MarshalFile(records, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadSnapshots loads a snapshots.csv written by OutputManager.
func ReadSnapshots(path string) ([]sim.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshots: %w", err)
	}
	defer f.Close()
	var out []sim.Snapshot
	if err := gocsv.UnmarshalFile(f, &out); err != nil {
		return nil, fmt.Errorf("reading snapshots: %w", err)
	}
	return out, nil
}
