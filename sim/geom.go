package sim

import (
	"fmt"
	"math"
)

// Location is a 2D coordinate in meters.
type Location struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Distance returns the Euclidean distance between two locations.
func (l Location) Distance(o Location) float64 {
	return math.Hypot(l.X-o.X, l.Y-o.Y)
}

func (l Location) String() string {
	return fmt.Sprintf("(%.1f, %.1f)", l.X, l.Y)
}

// Bounds is the simulation area [0, XMax] x [0, YMax].
type Bounds struct {
	XMax float64 `yaml:"x_max"`
	YMax float64 `yaml:"y_max"`
}

// Contains reports whether l lies inside the bounds (edges included).
func (b Bounds) Contains(l Location) bool {
	return l.X >= 0 && l.X <= b.XMax && l.Y >= 0 && l.Y <= b.YMax
}

// Clamp clips l onto the bounds. Clipping, not reflection: a draw that lands
// outside is pinned to the nearest edge point.
func (b Bounds) Clamp(l Location) Location {
	return Location{
		X: math.Min(b.XMax, math.Max(0, l.X)),
		Y: math.Min(b.YMax, math.Max(0, l.Y)),
	}
}

// Diagonal returns the length of the world diagonal.
func (b Bounds) Diagonal() float64 {
	return math.Hypot(b.XMax, b.YMax)
}

func (b Bounds) validate() error {
	if !(b.XMax > 0) || math.IsInf(b.XMax, 0) {
		return configErrorf("world.x_max", "must be a finite positive number, got %v", b.XMax)
	}
	if !(b.YMax > 0) || math.IsInf(b.YMax, 0) {
		return configErrorf("world.y_max", "must be a finite positive number, got %v", b.YMax)
	}
	return nil
}
