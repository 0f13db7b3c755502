// Package solver restores rigid-bar length constraints with position-based
// (Jacobi-style) relaxation. It is a damped iterative solver, not an exact
// one: overconstrained graphs settle into a least-effort approximation with
// visible residual error, and that residual (not a solver failure) is how
// structural conflicts surface to the user.
package solver

import (
	"math"

	"github.com/linkage-studio/engine/internal/mechanism"
)

// DefaultIterations is the relaxation pass count per tick. Chosen empirically
// to balance convergence against per-frame cost; not adaptive.
const DefaultIterations = 10

// LockedSet marks the nodes the solver must treat as immovable anchors for
// the current tick: fixed nodes, motor-driven nodes, and any node the user is
// holding. Membership is re-derived every tick.
type LockedSet map[mechanism.NodeID]bool

// Relax runs the given number of relaxation passes over every link in stable
// order, mutating node positions in place. Links with a deleted endpoint or
// a zero-length direction vector are skipped for the pass.
func Relax(m *mechanism.Mechanism, locked LockedSet, iterations int) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	links := m.OrderedLinks()
	for i := 0; i < iterations; i++ {
		for _, l := range links {
			relaxLink(m, l, locked)
		}
	}
}

func relaxLink(m *mechanism.Mechanism, l *mechanism.Link, locked LockedSet) {
	source, target, ok := m.Endpoints(l)
	if !ok {
		return
	}

	dx := target.X - source.X
	dy := target.Y - source.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		// coincident endpoints, no defined correction direction
		return
	}

	diff := (dist - l.Length) / dist
	moveX := dx * diff * 0.5
	moveY := dy * diff * 0.5

	sourceLocked := locked[source.ID]
	targetLocked := locked[target.ID]

	switch {
	case sourceLocked && targetLocked:
		// structurally overconstrained this tick, leave the error visible
	case sourceLocked:
		// the locked end absorbs nothing, the free end takes the full correction
		target.X -= 2 * moveX
		target.Y -= 2 * moveY
	case targetLocked:
		source.X += 2 * moveX
		source.Y += 2 * moveY
	default:
		source.X += moveX
		source.Y += moveY
		target.X -= moveX
		target.Y -= moveY
	}
}
