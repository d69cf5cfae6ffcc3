package demography

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/inference-sim/episim/sim"
)

// GravityMatrix builds a row-stochastic transition matrix from key-location
// populations: an individual stays with probability stay and otherwise moves
// to j with weight population_j / distance_ij^exponent. Locations with no
// reachable destination keep the whole row on the diagonal.
func GravityMatrix(locations []sim.KeyLocation, stay, exponent float64) ([][]float64, error) {
	if !(stay >= 0 && stay <= 1) {
		return nil, fmt.Errorf("gravity stay probability must be in [0,1], got %v", stay)
	}
	if !(exponent >= 0) || math.IsInf(exponent, 0) {
		return nil, fmt.Errorf("gravity exponent must be a finite non-negative number, got %v", exponent)
	}
	n := len(locations)
	if n == 0 {
		return nil, fmt.Errorf("gravity matrix requires at least one key location")
	}

	weights := mat.NewDense(n, n, nil)
	for i, from := range locations {
		for j, to := range locations {
			if i == j || to.Population <= 0 {
				continue
			}
			d := from.Location().Distance(to.Location())
			if d == 0 {
				d = 1
			}
			weights.Set(i, j, to.Population/math.Pow(d, exponent))
		}
	}

	out := make([][]float64, n)
	for i := range out {
		row := mat.Row(nil, i, weights)
		total := floats.Sum(row)
		if total == 0 {
			row[i] = 1
			out[i] = row
			continue
		}
		floats.Scale((1-stay)/total, row)
		row[i] = stay
		// Absorb rounding so the row sums to 1 exactly within tolerance.
		row[i] += 1 - floats.Sum(row)
		out[i] = row
	}
	return out, nil
}
