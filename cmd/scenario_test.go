package cmd

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/episim/sim"
	"github.com/inference-sim/episim/sim/climate"
)

const testScenario = "../testdata/scenario.yaml"

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Testdata(t *testing.T) {
	// GIVEN the reference scenario
	scn, err := LoadScenario(testScenario)
	require.NoError(t, err)

	// THEN top-level and nested values come from the file
	assert.Equal(t, int64(7), scn.Seed)
	assert.Equal(t, 30, scn.Steps)
	assert.Equal(t, 400, scn.Population.Initial)
	assert.Equal(t, sim.PolicySymptomaticWeighted, scn.Medical.Policy)
	require.Len(t, scn.Disease.AgeBrackets, 2)

	// AND relative file references resolve against the scenario directory
	assert.Equal(t, filepath.Join("..", "testdata", "key_locations.csv"), scn.KeyLocationsFile)
	assert.Equal(t, filepath.Join("..", "testdata", "age_groups.csv"), scn.Demography.AgeGroupsFile)
	require.NotNil(t, scn.Climate)
	assert.Equal(t, filepath.Join("..", "testdata", "temperature.csv"), scn.Climate.File)

	// AND distributions the file leaves out keep their defaults
	assert.Equal(t, "beta", scn.Demography.Vulnerability.Type)
	assert.Equal(t, 40.0, scn.Demography.InfectionRadius.Params["mean"])
}

func TestScenario_Build_Testdata(t *testing.T) {
	scn, err := LoadScenario(testScenario)
	require.NoError(t, err)

	built, err := scn.Build()
	require.NoError(t, err)

	// Key locations come from the CSV and the matrix from the gravity model.
	locations := built.Config.Transport.KeyLocations
	require.Len(t, locations, 4)
	assert.Equal(t, "market", locations[1].Name)
	require.Len(t, built.Config.Transport.Matrix, 4)
	for i, row := range built.Config.Transport.Matrix {
		sum := 0.0
		for _, p := range row {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, sim.RowSumTolerance, "row %d", i)
		assert.InDelta(t, 0.85, row[i], 1e-9, "row %d", i)
	}

	assert.Equal(t, sim.FixedArrivals(2), built.Arrivals)
	table, ok := built.Temperature.(*climate.Table)
	require.True(t, ok, "climate.file yields a measured table")
	assert.Equal(t, 8.5, table.Temperature(45))
	assert.NotNil(t, built.Drawer)

	// The scenario itself is not mutated by Build.
	assert.Equal(t, 0.85, scn.Gravity.Stay)
}

func TestLoadScenario_RejectsUnknownField(t *testing.T) {
	// GIVEN a scenario with a typo
	path := writeScenario(t, "seed: 1\nsteps: 5\npopulaton:\n  initial: 10\n")

	// WHEN loaded
	_, err := LoadScenario(path)

	// THEN strict parsing reports the unknown key
	require.Error(t, err)
	assert.Contains(t, err.Error(), "populaton")
}

func TestLoadScenario_PartialDistributionReplacesDefaults(t *testing.T) {
	// GIVEN a scenario that only sets the radius to a constant
	path := writeScenario(t, `
demography:
  infection_radius:
    type: constant
    params: {value: 25}
`)

	scn, err := LoadScenario(path)
	require.NoError(t, err)

	// THEN no default normal params leak into the constant distribution
	assert.Equal(t, map[string]float64{"value": 25}, scn.Demography.InfectionRadius.Params)
	assert.Equal(t, sim.DefaultConfig().Population, scn.Population)
	assert.NotEmpty(t, scn.Demography.AgeGroups)
}

func TestScenario_Build_SeriesClimate(t *testing.T) {
	scn := DefaultScenario()
	scn.Climate = &climate.Config{Mean: 10, Amplitude: 5, WarmestDay: 100}

	built, err := scn.Build()
	require.NoError(t, err)

	_, ok := built.Temperature.(*climate.Series)
	require.True(t, ok)
	assert.InDelta(t, 15.0, built.Temperature.Temperature(100), 1e-9)
}

func TestScenario_Build_DefaultsToConstantTemperature(t *testing.T) {
	scn := DefaultScenario()
	built, err := scn.Build()
	require.NoError(t, err)
	assert.Equal(t, sim.ConstantTemperature(scn.World.AverageTemperature), built.Temperature)
}

func TestScenario_Build_LocationsFileWithoutGravity_FallsBack(t *testing.T) {
	// GIVEN a key locations file and the default 3x3 matrix
	scn := DefaultScenario()
	scn.KeyLocationsFile = "../testdata/key_locations.csv"

	// WHEN built
	built, err := scn.Build()
	require.NoError(t, err)

	// THEN a default gravity matrix of the right size is derived
	require.Len(t, built.Config.Transport.Matrix, 4)
	assert.InDelta(t, defaultGravity.Stay, built.Config.Transport.Matrix[0][0], 1e-9)
	assert.Nil(t, scn.Gravity)
}

func TestScenario_Build_InvalidConfig(t *testing.T) {
	scn := DefaultScenario()
	scn.Disease.KernelScale = math.NaN()

	_, err := scn.Build()

	var cfgErr *sim.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "disease.kernel_scale", cfgErr.Field)
}

func TestScenario_YAML_RoundTrip(t *testing.T) {
	scn, err := LoadScenario(testScenario)
	require.NoError(t, err)

	doc, err := scn.YAML()
	require.NoError(t, err)
	reloaded, err := LoadScenario(writeScenario(t, doc))
	require.NoError(t, err)

	assert.Equal(t, scn.Config.Disease, reloaded.Config.Disease)
	assert.Equal(t, scn.Demography.InfectionRadius, reloaded.Demography.InfectionRadius)
}

func TestLoadScenario_InfinitePoissonRate_Rejected(t *testing.T) {
	// GIVEN a scenario whose arrival rate is YAML infinity
	path := writeScenario(t, `
demography:
  arrivals:
    process: poisson
    rate: .inf
`)
	scn, err := LoadScenario(path)
	require.NoError(t, err)

	// WHEN built
	_, err = scn.Build()

	// THEN the rate is reported as a configuration error
	var cfgErr *sim.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "demography.arrivals.rate", cfgErr.Field)
}
