// Package testutil provides shared test infrastructure for the episim
// simulator: repo testdata lookup and float assertion helpers used across
// sim/ sub-packages and cmd/.
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// TestdataPath resolves name inside the repo-root testdata/ directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func TestdataPath(t *testing.T, name string) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// Navigate from sim/internal/testutil/ to repo root testdata/
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", name)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Failed to locate testdata file %s: %v", name, err)
	}
	return path
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertRowStochastic fails unless every row of m sums to 1 within tol and
// holds no negative entry.
func AssertRowStochastic(t *testing.T, m [][]float64, tol float64) {
	t.Helper()
	for i, row := range m {
		sum := 0.0
		for j, p := range row {
			if p < 0 {
				t.Errorf("row %d col %d: negative probability %v", i, j, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > tol {
			t.Errorf("row %d sums to %.15f, want 1 ± %g", i, sum, tol)
		}
	}
}
