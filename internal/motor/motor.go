// Package motor advances motor-driven nodes by one simulated tick. It writes
// only the driven node's position and drive state; pulling the rest of the
// mechanism along is the solver's job.
package motor

import (
	"math"

	"github.com/linkage-studio/engine/internal/geo"
	"github.com/linkage-studio/engine/internal/mechanism"
)

// Drive-rate tuning constants. BaseSpeed is the nominal advance in abstract
// radians per tick; PixelsPerRadian converts a path-follower ticker into arc
// length along the target path; FallbackRadius is used for rotary motors
// authored without an explicit radius.
const (
	BaseSpeed       = 0.05
	PixelsPerRadian = 30.0
	FallbackRadius  = 50.0
)

// Config overrides the drive-rate constants. Zero fields fall back to the
// package defaults.
type Config struct {
	BaseSpeed       float64
	PixelsPerRadian float64
	FallbackRadius  float64
}

func (c Config) withDefaults() Config {
	if c.BaseSpeed == 0 {
		c.BaseSpeed = BaseSpeed
	}
	if c.PixelsPerRadian == 0 {
		c.PixelsPerRadian = PixelsPerRadian
	}
	if c.FallbackRadius == 0 {
		c.FallbackRadius = FallbackRadius
	}
	return c
}

// Step runs one kinematic tick over every motor node. path is the sampled
// target path for path-followers and may be nil. A motor whose prerequisites
// are missing (an unsampleable path, a pivot that was deleted or unfixed)
// simply does not move this tick.
func Step(m *mechanism.Mechanism, path *geo.Path, globalSpeed float64, cfg Config) {
	cfg = cfg.withDefaults()
	for _, n := range m.Nodes {
		if n.Drive == nil {
			continue
		}
		advance := cfg.BaseSpeed * globalSpeed * n.Drive.Multiplier()
		switch n.Drive.Mode {
		case mechanism.DrivePathFollow:
			stepPathFollower(n, path, advance, cfg)
		case mechanism.DriveRotary:
			stepRotary(m, n, advance, cfg)
		}
	}
}

func stepPathFollower(n *mechanism.Node, path *geo.Path, advance float64, cfg Config) {
	if path == nil || path.Len() < 2 {
		return
	}
	ticker := n.Drive.Ticker + advance
	pt, ok := path.PointAtDistance(ticker * cfg.PixelsPerRadian)
	if !ok {
		return
	}
	n.X = pt.X
	n.Y = pt.Y
	n.Drive.Ticker = ticker
}

func stepRotary(m *mechanism.Mechanism, n *mechanism.Node, advance float64, cfg Config) {
	pivot, ok := m.Node(n.Drive.PivotID)
	if !ok || !pivot.Fixed {
		// dangling or unfixed pivot, rotary drive is inert
		return
	}
	radius := n.Drive.Radius
	if radius <= 0 {
		radius = cfg.FallbackRadius
	}
	n.Drive.Angle += advance
	n.X = pivot.X + radius*math.Cos(n.Drive.Angle)
	n.Y = pivot.Y + radius*math.Sin(n.Drive.Angle)
}
