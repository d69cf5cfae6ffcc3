package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/episim/sim"
	"github.com/inference-sim/episim/sim/export"
	"github.com/inference-sim/episim/sim/trace"
)

var (
	// CLI flags for the run
	scenarioPath string // YAML scenario; empty = built-in defaults
	seed         int64  // Seed for every random stream
	steps        int    // Number of steps to simulate
	workers      int    // Parallel workers per step (0 = GOMAXPROCS)
	logLevel     string // Log verbosity level

	// CLI flags for outputs
	outputDir  string // Directory for CSV outputs
	dbPath     string // SQLite database for run storage
	traceLevel string // Trace verbosity: none, transitions, individuals
	traceEvery int    // Dump interval under --trace individuals
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "episim",
	Short: "Spatial agent-based epidemic simulator",
}

// setLogLevel parses and applies --log.
func setLogLevel() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
	return nil
}

// loadScenario loads --scenario (or the defaults) and applies the flags the
// user changed on top of it.
func loadScenario(cmd *cobra.Command) (*Scenario, error) {
	scn := DefaultScenario()
	if scenarioPath != "" {
		loaded, err := LoadScenario(scenarioPath)
		if err != nil {
			return nil, err
		}
		scn = *loaded
	}
	applyFlagOverrides(cmd, &scn)
	return &scn, nil
}

// applyFlagOverrides copies explicitly set flags onto the scenario. Flags
// left at their defaults never override the YAML.
func applyFlagOverrides(cmd *cobra.Command, scn *Scenario) {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		logrus.Infof("CLI --seed %d overrides scenario seed %d", seed, scn.Seed)
		scn.Seed = seed
	}
	if flags.Changed("steps") {
		scn.Steps = steps
	}
	if flags.Changed("workers") {
		scn.Runtime.Workers = workers
	}
	if flags.Changed("trace") {
		scn.Trace.Level = trace.TraceLevel(traceLevel)
	}
	if flags.Changed("trace-every") {
		scn.Trace.Every = traceEvery
	}
}

// runCmd executes the simulation using the scenario and CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the epidemic simulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setLogLevel(); err != nil {
			return err
		}
		scn, err := loadScenario(cmd)
		if err != nil {
			return err
		}
		built, err := scn.Build()
		if err != nil {
			return err
		}

		startTime := time.Now()
		s, err := sim.NewSimulator(built.Config, built.Drawer, built.Arrivals, built.Temperature)
		if err != nil {
			return err
		}

		om, err := export.NewOutputManager(outputDir)
		if err != nil {
			return err
		}
		defer om.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		snapshots, runErr := s.Run(ctx, om.WriteSnapshot)
		if runErr != nil {
			logrus.Errorf("run stopped after step %d: %v", s.CurrentStep(), runErr)
		}

		if err := om.WriteTrace(s.Trace()); err != nil {
			return err
		}
		if dbPath != "" {
			if err := storeRun(scn, built.Config, snapshots); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		s.Metrics().Print(out)
		if st := s.Trace(); st != nil {
			summary := trace.Summarize(st)
			fmt.Fprintf(out, "Traced Transitions   : %d (%d infections, %d deaths, %d recoveries)\n",
				summary.TotalTransitions, summary.Infections, summary.Deaths, summary.Recoveries)
			fmt.Fprintf(out, "Mean Infected Age    : %.1f (sd %.1f)\n", summary.MeanInfectedAge, summary.StdInfectedAge)
		}
		logrus.Infof("Simulation complete in %s.", time.Since(startTime).Round(time.Millisecond))
		return runErr
	},
}

func storeRun(scn *Scenario, cfg sim.Config, snapshots []sim.Snapshot) error {
	store, err := export.OpenStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	doc, err := scn.YAML()
	if err != nil {
		return err
	}
	runID, err := store.CreateRun(cfg.Seed, cfg.Steps, doc)
	if err != nil {
		return err
	}
	if err := store.SaveSnapshots(runID, snapshots); err != nil {
		return err
	}
	logrus.Infof("stored run %s (%d snapshots) in %s", runID, len(snapshots), dbPath)
	return nil
}

// validateCmd checks a scenario without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a scenario and its referenced files",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setLogLevel(); err != nil {
			return err
		}
		scn, err := loadScenario(cmd)
		if err != nil {
			return err
		}
		built, err := scn.Build()
		if err != nil {
			return err
		}
		cfg := built.Config
		fmt.Fprintf(cmd.OutOrStdout(), "scenario OK: %d individuals (%d infected), %d key locations, %d steps, seed %d\n",
			cfg.Population.Initial, cfg.Population.InitialInfected, len(cfg.Transport.KeyLocations), cfg.Steps, cfg.Seed)
		return nil
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, validateCmd} {
		c.Flags().StringVar(&scenarioPath, "scenario", "", "Path to a YAML scenario (defaults are used when empty)")
		c.Flags().Int64Var(&seed, "seed", 42, "Seed for every random stream (overrides the scenario seed when set)")
		c.Flags().IntVar(&steps, "steps", 120, "Number of steps to simulate (overrides the scenario when set)")
		c.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	}

	// Execution
	runCmd.Flags().IntVar(&workers, "workers", 0, "Parallel workers per step (0 = GOMAXPROCS); never changes results")

	// Outputs
	runCmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for snapshots.csv, ages.csv and trace CSVs")
	runCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database to store the run in")
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Trace level (none, transitions, individuals)")
	runCmd.Flags().IntVar(&traceEvery, "trace-every", 0, "Steps between individual dumps under --trace individuals (0 = every step)")

	// Attach subcommands to `root`
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
