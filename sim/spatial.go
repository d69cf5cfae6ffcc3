package sim

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// maxGridCells bounds the index memory; cells are widened to stay under it.
const maxGridCells = 1 << 20

// InfectiousSource is one infectious individual's contribution to the field:
// Weight × gaussianPDF(distance, Sigma).
type InfectiousSource struct {
	ID       IndividualID
	Location Location
	Sigma    float64 // kernel scale, > 0
	Radius   float64 // infection_radius the scale was derived from
	Weight   float64 // infectious rate × time decay, >= 0
}

// contribution evaluates the kernel at distance d with gonum's log-space
// Normal density, which stays finite for any positive sigma.
func (s *InfectiousSource) contribution(d float64) float64 {
	if s.Weight == 0 {
		return 0
	}
	return s.Weight * distuv.Normal{Mu: 0, Sigma: s.Sigma}.Prob(d)
}

// cutoff returns the distance beyond which the contribution is at most
// threshold. Zero means the source never exceeds threshold.
func (s *InfectiousSource) cutoff(threshold float64) float64 {
	peak := s.contribution(0)
	if peak <= threshold {
		return 0
	}
	return s.Sigma * math.Sqrt(2*math.Log(peak/threshold))
}

// SpatialIndex is a uniform grid over the world holding infectious sources.
// The cell size is at least the largest cutoff radius, so a query only needs
// the 3x3 block of cells around it to see every source whose contribution
// exceeds the negligibility threshold. Small or exact configurations fall
// back to a full scan.
type SpatialIndex struct {
	bounds        Bounds
	threshold     float64
	fullScanBelow int

	sources  []InfectiousSource
	fullScan bool
	cellSize float64
	cols     int
	rows     int
	cells    [][]int32 // indices into sources
}

// NewSpatialIndex creates an empty index. threshold is the negligibility
// threshold; fullScanBelow is the source count under which the grid is
// skipped.
func NewSpatialIndex(bounds Bounds, threshold float64, fullScanBelow int) *SpatialIndex {
	return &SpatialIndex{bounds: bounds, threshold: threshold, fullScanBelow: fullScanBelow, fullScan: true}
}

// Rebuild replaces the indexed sources. It is called once per step after
// movement. Any source with a non-finite cutoff forces a full scan.
func (ix *SpatialIndex) Rebuild(sources []InfectiousSource) {
	ix.sources = sources
	ix.fullScan = true
	for i := range ix.cells {
		ix.cells[i] = ix.cells[i][:0]
	}
	if len(sources) == 0 || len(sources) < ix.fullScanBelow || ix.threshold == 0 {
		return
	}

	cell := 0.0
	for i := range sources {
		c := sources[i].cutoff(ix.threshold)
		// No cutoff for non-finite sources: scan them all.
		if math.IsNaN(c) || math.IsInf(c, 0) || math.IsNaN(sources[i].Radius) {
			return
		}
		cell = math.Max(cell, c)
		cell = math.Max(cell, sources[i].Radius)
	}
	if cell <= 0 {
		return
	}
	// Cells at least as large as half the world gain nothing over a scan.
	if 2*cell >= math.Max(ix.bounds.XMax, ix.bounds.YMax) {
		return
	}
	if minCell := math.Sqrt(ix.bounds.XMax * ix.bounds.YMax / maxGridCells); cell < minCell {
		cell = minCell
	}

	cols := int(ix.bounds.XMax/cell) + 1
	rows := int(ix.bounds.YMax/cell) + 1
	if cell != ix.cellSize || cols*rows != len(ix.cells) {
		ix.cells = make([][]int32, cols*rows)
	}
	ix.cellSize, ix.cols, ix.rows = cell, cols, rows
	ix.fullScan = false
	for i := range sources {
		idx := ix.cellIndex(sources[i].Location)
		ix.cells[idx] = append(ix.cells[idx], int32(i))
	}
}

// FullScan reports whether queries scan every source.
func (ix *SpatialIndex) FullScan() bool { return ix.fullScan }

// CellSize returns the grid cell size, 0 in full-scan mode.
func (ix *SpatialIndex) CellSize() float64 {
	if ix.fullScan {
		return 0
	}
	return ix.cellSize
}

// Len returns the number of indexed sources.
func (ix *SpatialIndex) Len() int { return len(ix.sources) }

// Sum returns the summed kernel contribution of all sources at l.
func (ix *SpatialIndex) Sum(l Location) float64 {
	total := 0.0
	if ix.fullScan {
		for i := range ix.sources {
			total += ix.sources[i].contribution(l.Distance(ix.sources[i].Location))
		}
		return total
	}

	col, row := ix.cellCoords(l)
	for dr := -1; dr <= 1; dr++ {
		r := row + dr
		if r < 0 || r >= ix.rows {
			continue
		}
		for dc := -1; dc <= 1; dc++ {
			c := col + dc
			if c < 0 || c >= ix.cols {
				continue
			}
			for _, si := range ix.cells[r*ix.cols+c] {
				s := &ix.sources[si]
				total += s.contribution(l.Distance(s.Location))
			}
		}
	}
	return total
}

func (ix *SpatialIndex) cellCoords(l Location) (int, int) {
	col := int(l.X / ix.cellSize)
	row := int(l.Y / ix.cellSize)

	// Clamp to valid range
	if col < 0 {
		col = 0
	} else if col >= ix.cols {
		col = ix.cols - 1
	}
	if row < 0 {
		row = 0
	} else if row >= ix.rows {
		row = ix.rows - 1
	}
	return col, row
}

func (ix *SpatialIndex) cellIndex(l Location) int {
	col, row := ix.cellCoords(l)
	return row*ix.cols + col
}
