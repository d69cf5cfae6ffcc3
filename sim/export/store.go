package export

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/inference-sim/episim/sim"
)

// Run is one stored simulation run.
type Run struct {
	ID        string `db:"id"`
	Seed      int64  `db:"seed"`
	Steps     int    `db:"steps"`
	Scenario  string `db:"scenario"`
	CreatedAt string `db:"created_at"`
}

// Store wraps a SQLite connection holding runs and their snapshots.
type Store struct {
	conn *sqlx.DB
}

// OpenStore opens or creates a SQLite database at the given path.
func OpenStore(path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		scenario TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL REFERENCES runs(id),
		step INTEGER NOT NULL,
		population INTEGER NOT NULL,
		living INTEGER NOT NULL,
		susceptible INTEGER NOT NULL,
		true_infected INTEGER NOT NULL,
		true_symptomatic INTEGER NOT NULL,
		true_recovered INTEGER NOT NULL,
		true_dead INTEGER NOT NULL,
		tested INTEGER NOT NULL,
		observed_infected INTEGER NOT NULL,
		cumulative_confirmed INTEGER NOT NULL,
		arrivals INTEGER NOT NULL,
		budget INTEGER NOT NULL,
		temperature REAL NOT NULL,
		infectious_rate REAL NOT NULL,
		PRIMARY KEY (run_id, step)
	);

	CREATE TABLE IF NOT EXISTS age_counts (
		run_id TEXT NOT NULL REFERENCES runs(id),
		step INTEGER NOT NULL,
		min_age INTEGER NOT NULL,
		max_age INTEGER NOT NULL,
		living INTEGER NOT NULL,
		infected INTEGER NOT NULL,
		dead INTEGER NOT NULL,
		PRIMARY KEY (run_id, step, min_age)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// CreateRun registers a new run and returns its id. scenario is the YAML the
// run was configured with.
func (s *Store) CreateRun(seed int64, steps int, scenario string) (string, error) {
	id := uuid.New().String()
	_, err := s.conn.Exec(`INSERT INTO runs (id, seed, steps, scenario, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, seed, steps, scenario, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

type snapshotRow struct {
	RunID string `db:"run_id"`
	sim.Snapshot
}

type ageRow struct {
	RunID string `db:"run_id"`
	AgeRow
}

// SaveSnapshots writes snapshots and their age accounting for a run in one
// transaction.
func (s *Store) SaveSnapshots(runID string, snapshots []sim.Snapshot) error {
	tx, err := s.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, snap := range snapshots {
		if _, err := tx.NamedExec(`INSERT INTO snapshots
			(run_id, step, population, living, susceptible, true_infected, true_symptomatic,
			 true_recovered, true_dead, tested, observed_infected, cumulative_confirmed,
			 arrivals, budget, temperature, infectious_rate)
			VALUES (:run_id, :step, :population, :living, :susceptible, :true_infected, :true_symptomatic,
			 :true_recovered, :true_dead, :tested, :observed_infected, :cumulative_confirmed,
			 :arrivals, :budget, :temperature, :infectious_rate)`,
			snapshotRow{RunID: runID, Snapshot: snap}); err != nil {
			return fmt.Errorf("save snapshot %d: %w", snap.Step, err)
		}
		for _, a := range AgeRows(snap) {
			if _, err := tx.NamedExec(`INSERT INTO age_counts
				(run_id, step, min_age, max_age, living, infected, dead)
				VALUES (:run_id, :step, :min_age, :max_age, :living, :infected, :dead)`,
				ageRow{RunID: runID, AgeRow: a}); err != nil {
				return fmt.Errorf("save age counts %d: %w", snap.Step, err)
			}
		}
	}
	return tx.Commit()
}

// LoadSnapshots returns the snapshots of a run ordered by step. Age
// accounting is not loaded; see LoadAgeRows.
func (s *Store) LoadSnapshots(runID string) ([]sim.Snapshot, error) {
	var out []sim.Snapshot
	err := s.conn.Select(&out, `SELECT step, population, living, susceptible, true_infected, true_symptomatic,
		true_recovered, true_dead, tested, observed_infected, cumulative_confirmed,
		arrivals, budget, temperature, infectious_rate
		FROM snapshots WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	return out, nil
}

// LoadAgeRows returns the age accounting of a run ordered by step and age.
func (s *Store) LoadAgeRows(runID string) ([]AgeRow, error) {
	var out []AgeRow
	err := s.conn.Select(&out, `SELECT step, min_age, max_age, living, infected, dead
		FROM age_counts WHERE run_id = ? ORDER BY step, min_age`, runID)
	if err != nil {
		return nil, fmt.Errorf("load age counts: %w", err)
	}
	return out, nil
}

// Runs lists stored runs, newest first.
func (s *Store) Runs() ([]Run, error) {
	var out []Run
	if err := s.conn.Select(&out, `SELECT id, seed, steps, scenario, created_at FROM runs ORDER BY created_at DESC, id`); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}
