// Package mobility computes the planar Gruebler mobility number for a
// mechanism graph and classifies the result. The analysis is a pure function
// of topology (positions, drive state and solver residuals play no part)
// and is meant to be recomputed when topology changes, not every tick.
package mobility

import "github.com/linkage-studio/engine/internal/mechanism"

// Classification buckets a mobility number for display in the studio
// inspector. It is advisory only: the solver runs the same way regardless.
type Classification string

const (
	ClassEmpty           Classification = "Empty"
	ClassOverconstrained Classification = "Overconstrained"
	ClassRigid           Classification = "Rigid Structure"
	ClassMechanism       Classification = "Mechanism (single degree of freedom)"
	ClassUnderconstrained Classification = "Underconstrained"
)

// Report is the result of a mobility analysis.
type Report struct {
	Mobility       int            `json:"mobility"`
	ActiveLinks    int            `json:"activeLinks"`
	Classification Classification `json:"classification"`
}

// Analyze applies Gruebler's criterion to the current graph.
//
// Links whose two endpoints are both fixed are rigid ground-to-ground members
// and carry no kinematic freedom; they are excluded before counting. N is the
// active link count plus the implicit ground link. Each node contributes
// joint cost by its active incident degree m: a fixed node contributes m (one
// revolute joint per grounded connection), a free node contributes m-1 (a pin
// shared by several bars is one physical joint, not one per bar).
func Analyze(m *mechanism.Mechanism) Report {
	degree := make(map[mechanism.NodeID]int)
	active := 0
	for _, l := range m.OrderedLinks() {
		source, target, ok := m.Endpoints(l)
		if !ok {
			continue
		}
		if source.Fixed && target.Fixed {
			continue
		}
		active++
		degree[source.ID]++
		degree[target.ID]++
	}

	joints := 0
	for id, deg := range degree {
		n, ok := m.Node(id)
		if !ok || deg == 0 {
			continue
		}
		if n.Fixed {
			joints += deg
		} else {
			joints += deg - 1
		}
	}

	n := active + 1
	mob := 3*(n-1) - 2*joints

	return Report{
		Mobility:       mob,
		ActiveLinks:    active,
		Classification: classify(active, mob),
	}
}

func classify(activeLinks, mobility int) Classification {
	switch {
	case activeLinks == 0:
		return ClassEmpty
	case mobility < 0:
		return ClassOverconstrained
	case mobility == 0:
		return ClassRigid
	case mobility == 1:
		return ClassMechanism
	default:
		return ClassUnderconstrained
	}
}
