package handlers

import (
	"math"

	"github.com/linkage-studio/engine/internal/mechanism"
)

// FourBarParams are the link lengths of a four-bar preset in abstract units:
// a is the input crank, b the coupler, c the follower, d the ground span.
type FourBarParams struct {
	CrankA    float64 `json:"a"`
	CouplerB  float64 `json:"b"`
	FollowerC float64 `json:"c"`
	GroundD   float64 `json:"d"`
	// EnforceGrashof nudges a down and d up until s+l <= p+q, so the crank
	// can fully rotate.
	EnforceGrashof bool `json:"enforceGrashof"`
}

// ScaleUnit converts abstract four-bar units into canvas pixels.
const ScaleUnit = 80.0

// Canvas anchor for the preset's ground pivot A.
const (
	fourBarOriginX = 180.0
	fourBarOriginY = 360.0
)

const grashofMaxNudges = 20

// grashofOK reports whether the shortest plus longest lengths do not exceed
// the sum of the other two, within float tolerance.
func grashofOK(a, b, c, d float64) bool {
	arr := []float64{a, b, c, d}
	sortFloats(arr)
	s, p, q, l := arr[0], arr[1], arr[2], arr[3]
	return s+l <= p+q+1e-9
}

func sortFloats(v []float64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

// GenerateFourBar replaces the current mechanism with a classic four-bar
// linkage: grounds A and D on a horizontal line, crank B driven about A,
// coupler joint C placed at the elbow-up circle intersection. The motor is
// attached to B so the assembly is ready to play immediately.
func (s *Service) GenerateFourBar(p FourBarParams) []*mechanism.Node {
	a := p.CrankA * ScaleUnit
	b := p.CouplerB * ScaleUnit
	c := p.FollowerC * ScaleUnit
	d := p.GroundD * ScaleUnit

	if p.EnforceGrashof {
		for i := 0; !grashofOK(a, b, c, d) && i < grashofMaxNudges; i++ {
			a *= 0.97
			d *= 1.03
		}
	}

	m := mechanism.New()
	s.engine.SetMechanism(m)
	s.nodeSeq = 0
	s.linkSeq = 0

	ax, ay := fourBarOriginX, fourBarOriginY
	dx, dy := ax+d, ay
	// crank starts pointing right
	bx, by := ax+a, ay
	cx, cy := circleIntersection(bx, by, b, dx, dy, c)

	nodeA := s.AddNode(ax, ay)
	nodeB := s.AddNode(bx, by)
	nodeC := s.AddNode(cx, cy)
	nodeD := s.AddNode(dx, dy)

	nodeA.Fixed = true
	nodeD.Fixed = true

	// Link errors are impossible here: four distinct fresh nodes.
	s.mustLink(nodeA.ID, nodeB.ID)
	s.mustLink(nodeB.ID, nodeC.ID)
	s.mustLink(nodeC.ID, nodeD.ID)
	s.mustLink(nodeD.ID, nodeA.ID)

	nodeB.SetDrive(&mechanism.Drive{
		Mode:    mechanism.DriveRotary,
		PivotID: nodeA.ID,
		Radius:  mechanism.Distance(nodeA.Position(), nodeB.Position()),
		Angle:   math.Atan2(nodeB.Y-nodeA.Y, nodeB.X-nodeA.X),
	})

	return []*mechanism.Node{nodeA, nodeB, nodeC, nodeD}
}

func (s *Service) mustLink(a, b mechanism.NodeID) {
	if _, err := s.AddLink(a, b); err != nil {
		panic(err)
	}
}

// circleIntersection returns the elbow-up intersection of the circle centered
// at (x1,y1) with radius r1 and the circle centered at (x2,y2) with radius
// r2. Degenerate inputs collapse to the radical point on the center line
// instead of failing, matching how the preset tolerates non-assemblable
// slider combinations.
func circleIntersection(x1, y1, r1, x2, y2, r2 float64) (float64, float64) {
	dx := x2 - x1
	dy := y2 - y1
	dist := math.Hypot(dx, dy)
	if dist < 1e-6 {
		dist = 1e-6
	}
	along := (r1*r1 - r2*r2 + dist*dist) / (2 * dist)
	off := 0.0
	if sq := r1*r1 - along*along; sq > 0 {
		off = math.Sqrt(sq)
	}
	ex, ey := dx/dist, dy/dist
	px, py := x1+along*ex, y1+along*ey
	return px - off*ey, py + off*ex
}
