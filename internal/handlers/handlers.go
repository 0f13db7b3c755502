// Package handlers implements the authoring boundary: the operations the
// studio process invokes to build and edit a mechanism. The kinematic core
// trusts whatever state these handlers produce; everything here is policy
// (ID assignment, pivot auto-derivation, rest-length capture at creation)
// layered on top of the passive mechanism model.
package handlers

import (
	"errors"
	"fmt"
	"math"

	"github.com/linkage-studio/engine/internal/geo"
	"github.com/linkage-studio/engine/internal/logging"
	"github.com/linkage-studio/engine/internal/mechanism"
	"github.com/linkage-studio/engine/internal/mobility"
	"github.com/linkage-studio/engine/internal/sim"
)

var (
	// ErrNodeNotFound is returned when an operation references a deleted node.
	ErrNodeNotFound = errors.New("node not found")
	// ErrLinkNotFound is returned when an operation references a deleted link.
	ErrLinkNotFound = errors.New("link not found")
	// ErrSelfLink is returned when both endpoints of a new link are the same node.
	ErrSelfLink = errors.New("link endpoints must be distinct")
	// ErrDuplicateLink is returned when the two nodes are already connected.
	ErrDuplicateLink = errors.New("nodes are already linked")
)

// Dependencies holds all dependencies needed by the authoring service.
type Dependencies struct {
	LogManager *logging.SlogManager
}

// Service provides the authoring operations for one engine instance.
type Service struct {
	deps    Dependencies
	engine  *sim.Engine
	nodeSeq uint64
	linkSeq uint64
}

// NewService creates a new authoring service.
func NewService(deps Dependencies, engine *sim.Engine) *Service {
	return &Service{
		deps:   deps,
		engine: engine,
	}
}

func (s *Service) writeLog(functionName, data, level string) {
	if s.deps.LogManager != nil {
		s.deps.LogManager.WriteLog(functionName, data, level)
	}
}

func (s *Service) mech() *mechanism.Mechanism {
	return s.engine.Mechanism()
}

func (s *Service) nextNodeID() mechanism.NodeID {
	s.nodeSeq++
	return mechanism.NodeID(fmt.Sprintf("n%d", s.nodeSeq))
}

func (s *Service) nextLinkID() mechanism.LinkID {
	s.linkSeq++
	return mechanism.LinkID(fmt.Sprintf("l%d", s.linkSeq))
}

// AddNode creates a free node at the given canvas position.
func (s *Service) AddNode(x, y float64) *mechanism.Node {
	n := &mechanism.Node{ID: s.nextNodeID(), X: x, Y: y}
	s.mech().AddNode(n)
	return n
}

// AddLink connects two existing nodes with a rigid bar whose rest length is
// captured from their current distance.
func (s *Service) AddLink(a, b mechanism.NodeID) (*mechanism.Link, error) {
	if a == b {
		return nil, ErrSelfLink
	}
	m := s.mech()
	na, ok := m.Node(a)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, a)
	}
	nb, ok := m.Node(b)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, b)
	}
	for _, l := range m.OrderedLinks() {
		if (l.SourceID == a && l.TargetID == b) || (l.SourceID == b && l.TargetID == a) {
			return nil, ErrDuplicateLink
		}
	}

	l := &mechanism.Link{
		ID:       s.nextLinkID(),
		SourceID: a,
		TargetID: b,
		Length:   mechanism.Distance(na.Position(), nb.Position()),
	}
	m.AddLink(l)
	return l, nil
}

// DeleteNode removes a node and cascade-deletes its incident links. Motors
// that used the node as a pivot keep their dangling reference and degrade to
// non-driven; that is the expected live-editing behavior, not an error.
func (s *Service) DeleteNode(id mechanism.NodeID) {
	s.mech().RemoveNode(id)
}

// DeleteLink removes a single link.
func (s *Service) DeleteLink(id mechanism.LinkID) {
	s.mech().RemoveLink(id)
}

// SetFixed toggles the ground-anchor flag. Fixing a motor strips its drive.
func (s *Service) SetFixed(id mechanism.NodeID, fixed bool) error {
	n, ok := s.mech().Node(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n.SetFixed(fixed)
	return nil
}

// SetTracer toggles trace recording for a node.
func (s *Service) SetTracer(id mechanism.NodeID, tracer bool) error {
	n, ok := s.mech().Node(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n.Tracer = tracer
	return nil
}

// EnableRotaryMotor attaches rotary drive state to a node, auto-deriving the
// pivot from the first fixed neighbor reachable through an existing link.
// Radius is the current distance to that neighbor and the initial angle
// preserves the node's current bearing, so the motor starts from where the
// node already is. Without a fixed neighbor the drive is still attached but
// stays inert until a pivot exists, the same degraded state as a deleted
// pivot.
func (s *Service) EnableRotaryMotor(id mechanism.NodeID) (*mechanism.Node, error) {
	m := s.mech()
	n, ok := m.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	drive := &mechanism.Drive{Mode: mechanism.DriveRotary}
	if pivot := s.findFixedNeighbor(id); pivot != nil {
		drive.PivotID = pivot.ID
		drive.Radius = mechanism.Distance(pivot.Position(), n.Position())
		drive.Angle = math.Atan2(n.Y-pivot.Y, n.X-pivot.X)
	} else {
		s.writeLog(":MOTOR:ROTARY:", fmt.Sprintf("node %s has no fixed neighbor, motor will idle", id), "WARN")
	}
	n.SetDrive(drive)
	return n, nil
}

// EnablePathMotor attaches path-follower drive state to a node. The ticker
// starts at zero; the node snaps onto the target path at the next playing
// tick.
func (s *Service) EnablePathMotor(id mechanism.NodeID) (*mechanism.Node, error) {
	n, ok := s.mech().Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n.SetDrive(&mechanism.Drive{Mode: mechanism.DrivePathFollow})
	return n, nil
}

// DisableMotor strips a node's drive state.
func (s *Service) DisableMotor(id mechanism.NodeID) error {
	n, ok := s.mech().Node(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n.SetDrive(nil)
	return nil
}

// SetSpeedMultiplier adjusts a motor's per-node playback speed factor.
func (s *Service) SetSpeedMultiplier(id mechanism.NodeID, multiplier float64) error {
	n, ok := s.mech().Node(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if n.Drive == nil {
		return fmt.Errorf("node %s is not a motor", id)
	}
	n.Drive.SpeedMultiplier = multiplier
	return nil
}

// SetTargetPath parses a polyline JSON string and installs it as the path
// traced by path-follower motors.
func (s *Service) SetTargetPath(polylineJSON string) error {
	points, err := geo.ParsePolyline(polylineJSON)
	if err != nil {
		return err
	}
	s.engine.SetTargetPath(points)
	return nil
}

// SetRestLength overwrites a link's enforced rest length. This is the only
// sanctioned way a length changes after creation; the solver never does.
func (s *Service) SetRestLength(id mechanism.LinkID, length float64) error {
	l, ok := s.mech().Link(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrLinkNotFound, id)
	}
	l.Length = length
	return nil
}

// RetargetRestLengths re-derives the rest length of every link incident to a
// node from current endpoint distances. The studio calls this while the user
// drags a node with the simulation paused, redefining geometry live instead
// of fighting the solver.
func (s *Service) RetargetRestLengths(id mechanism.NodeID) {
	m := s.mech()
	for _, l := range m.IncidentLinks(id) {
		source, target, ok := m.Endpoints(l)
		if !ok {
			continue
		}
		l.Length = mechanism.Distance(source.Position(), target.Position())
	}
}

// Mobility analyzes the current topology. Cheap enough to call on every
// topology edit, pointless to call every tick.
func (s *Service) Mobility() mobility.Report {
	return mobility.Analyze(s.mech())
}

// LoadDocument replaces the mechanism with a parsed document.
func (s *Service) LoadDocument(data []byte) error {
	m, err := mechanism.Unmarshal(data)
	if err != nil {
		return err
	}
	s.engine.SetMechanism(m)
	s.resequence(m)
	return nil
}

// ExportDocument serializes the current mechanism.
func (s *Service) ExportDocument() ([]byte, error) {
	return s.mech().Marshal()
}

// findFixedNeighbor walks the links incident to a node and returns the first
// fixed node on the far end, in stable link order.
func (s *Service) findFixedNeighbor(id mechanism.NodeID) *mechanism.Node {
	m := s.mech()
	for _, l := range m.IncidentLinks(id) {
		otherID := l.SourceID
		if otherID == id {
			otherID = l.TargetID
		}
		if other, ok := m.Node(otherID); ok && other.Fixed {
			return other
		}
	}
	return nil
}

// resequence bumps the ID counters past any n<k>/l<k> IDs present in a
// loaded document so later additions cannot collide.
func (s *Service) resequence(m *mechanism.Mechanism) {
	var maxNode, maxLink uint64
	for id := range m.Nodes {
		var k uint64
		if _, err := fmt.Sscanf(string(id), "n%d", &k); err == nil && k > maxNode {
			maxNode = k
		}
	}
	for id := range m.Links {
		var k uint64
		if _, err := fmt.Sscanf(string(id), "l%d", &k); err == nil && k > maxLink {
			maxLink = k
		}
	}
	s.nodeSeq = maxNode
	s.linkSeq = maxLink
}
