// Package geo provides the arc-length path sampler used by path-follower
// motors, plus polyline parsing and simplefeatures conversions for storage
// and preview consumers.
package geo

import (
	"errors"
	"math"

	"github.com/linkage-studio/engine/internal/mechanism"
)

// ErrInvalidPolyline is returned when polyline input cannot be parsed.
var ErrInvalidPolyline = errors.New("invalid polyline provided")

// Path is a continuous, loopable arc-length parameterization of a polyline.
// Sampling distance wraps modulo the total length, so the open polyline
// behaves as an implicit loop. Zero-length segments (repeated points) carry
// no arc length and are never selected by the sampler.
type Path struct {
	points []mechanism.Position2D
	// cumulative[i] is the arc length from the start to points[i].
	cumulative []float64
	total      float64
}

// NewPath builds a path from an ordered point sequence. Any sequence is
// accepted; a path with fewer than two points (or with zero total length)
// is defined but yields no sample points.
func NewPath(points []mechanism.Position2D) *Path {
	p := &Path{
		points:     points,
		cumulative: make([]float64, len(points)),
	}
	for i := 1; i < len(points); i++ {
		p.total += mechanism.Distance(points[i-1], points[i])
		p.cumulative[i] = p.total
	}
	return p
}

// Len returns the number of polyline points.
func (p *Path) Len() int {
	return len(p.points)
}

// TotalLength returns the summed segment length of the polyline.
func (p *Path) TotalLength() float64 {
	return p.total
}

// Points returns the underlying polyline.
func (p *Path) Points() []mechanism.Position2D {
	return p.points
}

// PointAtDistance returns the point at arc length d from the start of the
// path. d is normalized into [0, total) with true mathematical modulo, so
// negative distances wrap backwards from the end. ok is false when the path
// has fewer than two points or no arc length at all.
func (p *Path) PointAtDistance(d float64) (mechanism.Position2D, bool) {
	if len(p.points) < 2 || p.total <= 0 {
		return mechanism.Position2D{}, false
	}

	d = math.Mod(d, p.total)
	if d < 0 {
		d += p.total
	}

	for i := 1; i < len(p.points); i++ {
		segStart := p.cumulative[i-1]
		segLen := p.cumulative[i] - segStart
		if segLen <= 0 {
			// repeated point, no direction to interpolate along
			continue
		}
		if d <= p.cumulative[i] {
			t := (d - segStart) / segLen
			a, b := p.points[i-1], p.points[i]
			return mechanism.Position2D{
				X: a.X + (b.X-a.X)*t,
				Y: a.Y + (b.Y-a.Y)*t,
			}, true
		}
	}

	// d == total is already wrapped to 0 above; floating-point drift can
	// still leave d a hair past the last cumulative entry.
	return p.points[len(p.points)-1], true
}
