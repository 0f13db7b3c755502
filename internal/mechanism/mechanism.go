// Package mechanism defines the in-memory planar linkage model: pin joints
// (nodes), rigid bars (links) and the drive state attached to motor nodes.
// The package is a passive data arena; the solver and motor packages mutate
// positions and drive state, authoring handlers mutate topology. Every
// cross-reference (link endpoints, motor pivots) is looked up through the
// node table and may dangle after a deletion; callers treat a failed lookup
// as a per-tick no-op, never as an error.
package mechanism

import "math"

// NodeID identifies a pin joint. IDs are assigned by authoring collaborators
// and stay stable for the life of the node.
type NodeID string

// LinkID identifies a rigid bar.
type LinkID string

// Position2D is a point in the shared planar canvas space.
type Position2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DriveMode selects how a motor node's position is produced each tick.
type DriveMode int

const (
	// DriveRotary rotates the node at a fixed radius around a fixed pivot.
	DriveRotary DriveMode = iota
	// DrivePathFollow advances the node along the mechanism target path by
	// accumulated arc length.
	DrivePathFollow
)

// Drive is the motor state attached to a node. It is a mode-tagged variant:
// rotary mode reads Angle/Radius/PivotID, path-follow mode reads Ticker.
// The unused fields of the other mode are left at their zero values.
type Drive struct {
	Mode DriveMode `json:"mode"`

	// Rotary state.
	Angle   float64 `json:"angle,omitempty"`   // current drive angle, radians
	Radius  float64 `json:"radius,omitempty"`  // distance from pivot, canvas units
	PivotID NodeID  `json:"pivotId,omitempty"` // weak reference, must resolve to a fixed node

	// Path-follow state: monotonically increasing arc-length accumulator.
	Ticker float64 `json:"ticker,omitempty"`

	// SpeedMultiplier scales the global playback speed for this motor only.
	// Zero means "unset" and reads as 1.
	SpeedMultiplier float64 `json:"speedMultiplier,omitempty"`
}

// Multiplier returns the effective per-motor speed multiplier.
func (d *Drive) Multiplier() float64 {
	if d.SpeedMultiplier == 0 {
		return 1
	}
	return d.SpeedMultiplier
}

// Node is a pin joint in the mechanism.
type Node struct {
	ID     NodeID  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Fixed  bool    `json:"fixed,omitempty"`  // immovable ground anchor
	Tracer bool    `json:"tracer,omitempty"` // advisory, consumed by trace recording only
	Drive  *Drive  `json:"drive,omitempty"`  // nil for non-motor nodes
}

// IsMotor reports whether the node carries drive state.
func (n *Node) IsMotor() bool {
	return n.Drive != nil
}

// SetFixed toggles the ground-anchor flag. Fixing a node strips its drive:
// a node cannot be a ground anchor and a motor at the same time.
func (n *Node) SetFixed(fixed bool) {
	n.Fixed = fixed
	if fixed {
		n.Drive = nil
	}
}

// SetDrive attaches drive state, clearing the fixed flag for the same reason.
func (n *Node) SetDrive(d *Drive) {
	n.Drive = d
	if d != nil {
		n.Fixed = false
	}
}

// Position returns the node position as a value.
func (n *Node) Position() Position2D {
	return Position2D{X: n.X, Y: n.Y}
}

// Link is a rigid bar connecting two nodes. Source/target order is only used
// for consistent vector math; the bar itself is undirected.
type Link struct {
	ID       LinkID  `json:"id"`
	SourceID NodeID  `json:"sourceId"`
	TargetID NodeID  `json:"targetId"`
	Length   float64 `json:"length"` // rest length enforced by the solver
}

// Mechanism is the node/link arena plus the target path traced by
// path-follower motors. It carries no hidden state; invariants are enforced
// by the authoring handlers, and readers tolerate whatever they find.
type Mechanism struct {
	Nodes map[NodeID]*Node
	Links map[LinkID]*Link

	// linkOrder preserves insertion order so relaxation passes visit links in
	// a stable sequence regardless of map iteration.
	linkOrder []LinkID

	// TargetPath is the polyline traced by path-follower motors. May be nil
	// or shorter than two points, in which case those motors idle.
	TargetPath []Position2D
}

// New creates an empty mechanism.
func New() *Mechanism {
	return &Mechanism{
		Nodes: make(map[NodeID]*Node),
		Links: make(map[LinkID]*Link),
	}
}

// Node returns the node with the given ID, or false if it was deleted.
func (m *Mechanism) Node(id NodeID) (*Node, bool) {
	n, ok := m.Nodes[id]
	return n, ok
}

// Link returns the link with the given ID, or false if it was deleted.
func (m *Mechanism) Link(id LinkID) (*Link, bool) {
	l, ok := m.Links[id]
	return l, ok
}

// Endpoints resolves both endpoints of a link. ok is false when either
// endpoint has been deleted; such links are skipped by every consumer.
func (m *Mechanism) Endpoints(l *Link) (source, target *Node, ok bool) {
	source, ok = m.Nodes[l.SourceID]
	if !ok {
		return nil, nil, false
	}
	target, ok = m.Nodes[l.TargetID]
	if !ok {
		return nil, nil, false
	}
	return source, target, true
}

// AddNode inserts or replaces a node.
func (m *Mechanism) AddNode(n *Node) {
	m.Nodes[n.ID] = n
}

// AddLink inserts a link, appending it to the stable relaxation order.
func (m *Mechanism) AddLink(l *Link) {
	if _, exists := m.Links[l.ID]; !exists {
		m.linkOrder = append(m.linkOrder, l.ID)
	}
	m.Links[l.ID] = l
}

// RemoveLink deletes a link.
func (m *Mechanism) RemoveLink(id LinkID) {
	if _, ok := m.Links[id]; !ok {
		return
	}
	delete(m.Links, id)
	for i, lid := range m.linkOrder {
		if lid == id {
			m.linkOrder = append(m.linkOrder[:i], m.linkOrder[i+1:]...)
			break
		}
	}
}

// RemoveNode deletes a node and cascade-deletes its incident links. Motor
// pivots referencing the node are left dangling on purpose: the referencing
// motor degrades to non-driven at the next tick.
func (m *Mechanism) RemoveNode(id NodeID) {
	if _, ok := m.Nodes[id]; !ok {
		return
	}
	delete(m.Nodes, id)
	for _, l := range m.OrderedLinks() {
		if l.SourceID == id || l.TargetID == id {
			m.RemoveLink(l.ID)
		}
	}
}

// OrderedLinks returns the links in stable insertion order, skipping IDs
// whose record has been removed.
func (m *Mechanism) OrderedLinks() []*Link {
	links := make([]*Link, 0, len(m.linkOrder))
	for _, id := range m.linkOrder {
		if l, ok := m.Links[id]; ok {
			links = append(links, l)
		}
	}
	return links
}

// IncidentLinks returns the links touching a node, in stable order.
func (m *Mechanism) IncidentLinks(id NodeID) []*Link {
	var incident []*Link
	for _, l := range m.OrderedLinks() {
		if l.SourceID == id || l.TargetID == id {
			incident = append(incident, l)
		}
	}
	return incident
}

// Positions snapshots all node positions.
func (m *Mechanism) Positions() map[NodeID]Position2D {
	out := make(map[NodeID]Position2D, len(m.Nodes))
	for id, n := range m.Nodes {
		out[id] = n.Position()
	}
	return out
}

// SetPositions replaces node positions in one pass. Unknown IDs are ignored,
// nodes absent from the map keep their current position.
func (m *Mechanism) SetPositions(positions map[NodeID]Position2D) {
	for id, p := range positions {
		if n, ok := m.Nodes[id]; ok {
			n.X = p.X
			n.Y = p.Y
		}
	}
}

// ResidualError sums the absolute rest-length violation over all resolvable
// links. A structurally consistent mechanism relaxes toward zero; a residual
// that refuses to shrink is the visible sign of an overconstrained graph.
func (m *Mechanism) ResidualError() float64 {
	var total float64
	for _, l := range m.OrderedLinks() {
		source, target, ok := m.Endpoints(l)
		if !ok {
			continue
		}
		dist := math.Hypot(target.X-source.X, target.Y-source.Y)
		total += math.Abs(dist - l.Length)
	}
	return total
}

// Distance returns the Euclidean distance between two positions.
func Distance(a, b Position2D) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
