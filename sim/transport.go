package sim

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// TransportModel moves individuals between key locations and jitters them
// around their current anchor. The effective matrix already includes the
// mobility policy factor.
type TransportModel struct {
	bounds     Bounds
	names      []string
	anchors    []Location
	matrix     *mat.Dense
	cumulative *mat.Dense
	sigma      float64
}

// NewTransportModel validates cfg and precomputes cumulative rows.
//
// The mobility factor f rescales every off-diagonal probability by f and puts
// the remainder on the diagonal (stay at the current anchor), and scales the
// jitter standard deviation by f.
func NewTransportModel(cfg TransportConfig, bounds Bounds) (*TransportModel, error) {
	if err := cfg.validate(bounds); err != nil {
		return nil, err
	}
	n := len(cfg.KeyLocations)
	t := &TransportModel{
		bounds:     bounds,
		names:      make([]string, n),
		anchors:    make([]Location, n),
		matrix:     mat.NewDense(n, n, nil),
		cumulative: mat.NewDense(n, n, nil),
		sigma:      cfg.MovementSigma * cfg.MobilityFactor,
	}
	for i, k := range cfg.KeyLocations {
		t.names[i] = k.Name
		t.anchors[i] = k.Location()
	}
	for i, row := range cfg.Matrix {
		leave := 0.0
		for j, p := range row {
			if j == i {
				continue
			}
			scaled := p * cfg.MobilityFactor
			t.matrix.Set(i, j, scaled)
			leave += scaled
		}
		t.matrix.Set(i, i, 1-leave)

		cum := 0.0
		for j := 0; j < n; j++ {
			cum += t.matrix.At(i, j)
			t.cumulative.Set(i, j, cum)
		}
	}
	return t, nil
}

// Len returns the number of key locations.
func (t *TransportModel) Len() int { return len(t.anchors) }

// Anchor returns the coordinate of key location k.
func (t *TransportModel) Anchor(k int) Location { return t.anchors[k] }

// Name returns the name of key location k.
func (t *TransportModel) Name(k int) string { return t.names[k] }

// Matrix returns the effective transition matrix.
func (t *TransportModel) Matrix() mat.Matrix { return t.matrix }

// Sigma returns the jitter standard deviation at mobility 1.
func (t *TransportModel) Sigma() float64 { return t.sigma }

// NextKeyLocation maps a uniform draw u in [0,1) onto row current.
func (t *TransportModel) NextKeyLocation(current int, u float64) int {
	n := t.Len()
	last := current
	for j := 0; j < n; j++ {
		if t.matrix.At(current, j) > 0 {
			last = j
		}
		if u < t.cumulative.At(current, j) {
			return j
		}
	}
	// Row sums may fall short of 1 by rounding.
	return last
}

// Jitter draws a coordinate around anchor k for the given mobility and clips
// it to the world bounds.
func (t *TransportModel) Jitter(k int, mobility float64, rng *rand.Rand) Location {
	sd := t.sigma * mobility
	a := t.anchors[k]
	return t.bounds.Clamp(Location{
		X: a.X + rng.NormFloat64()*sd,
		Y: a.Y + rng.NormFloat64()*sd,
	})
}

// Move returns the next key location and coordinate of ind. Dead individuals
// stay where they are. Exactly three draws are consumed for living
// individuals: one for the anchor, two for the jitter.
func (t *TransportModel) Move(ind *Individual, rng *rand.Rand) (int, Location) {
	if !ind.State.Alive() {
		return ind.KeyLocation, ind.Location
	}
	next := t.NextKeyLocation(ind.KeyLocation, rng.Float64())
	return next, t.Jitter(next, ind.Mobility, rng)
}

// KeyLocationIndex resolves a key location by name.
func (t *TransportModel) KeyLocationIndex(name string) (int, error) {
	for i, n := range t.names {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown key location %q", name)
}
