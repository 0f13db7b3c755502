package motor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkage-studio/engine/internal/geo"
	"github.com/linkage-studio/engine/internal/mechanism"
)

func rotaryRig(radius float64) (*mechanism.Mechanism, *mechanism.Node) {
	m := mechanism.New()
	m.AddNode(&mechanism.Node{ID: "pivot", X: 100, Y: 100, Fixed: true})
	crank := &mechanism.Node{ID: "crank", X: 100 + radius, Y: 100, Drive: &mechanism.Drive{
		Mode:    mechanism.DriveRotary,
		PivotID: "pivot",
		Radius:  radius,
	}}
	m.AddNode(crank)
	return m, crank
}

func TestStep_RotaryAdvance(t *testing.T) {
	m, crank := rotaryRig(40)

	Step(m, nil, 1.0, Config{})

	require.InDelta(t, BaseSpeed, crank.Drive.Angle, 1e-9)
	assert.InDelta(t, 100+40*math.Cos(BaseSpeed), crank.X, 1e-9)
	assert.InDelta(t, 100+40*math.Sin(BaseSpeed), crank.Y, 1e-9)
}

func TestStep_RotaryGlobalSpeedAndMultiplier(t *testing.T) {
	m, crank := rotaryRig(40)
	crank.Drive.SpeedMultiplier = 3

	Step(m, nil, 2.0, Config{})

	assert.InDelta(t, BaseSpeed*2*3, crank.Drive.Angle, 1e-9)
}

func TestStep_RotaryFallbackRadius(t *testing.T) {
	m, crank := rotaryRig(0)

	Step(m, nil, 1.0, Config{})

	dist := math.Hypot(crank.X-100, crank.Y-100)
	assert.InDelta(t, FallbackRadius, dist, 1e-9)
}

func TestStep_RotaryDanglingPivotInert(t *testing.T) {
	m, crank := rotaryRig(40)
	m.RemoveNode("pivot")
	x, y := crank.X, crank.Y

	Step(m, nil, 1.0, Config{})

	assert.Equal(t, x, crank.X)
	assert.Equal(t, y, crank.Y)
	assert.Equal(t, 0.0, crank.Drive.Angle)
}

func TestStep_RotaryUnfixedPivotInert(t *testing.T) {
	m, crank := rotaryRig(40)
	pivot, _ := m.Node("pivot")
	pivot.Fixed = false
	x := crank.X

	Step(m, nil, 1.0, Config{})

	assert.Equal(t, x, crank.X)
}

func TestStep_PathFollower(t *testing.T) {
	m := mechanism.New()
	follower := &mechanism.Node{ID: "f", X: 500, Y: 500, Drive: &mechanism.Drive{
		Mode: mechanism.DrivePathFollow,
	}}
	m.AddNode(follower)
	path := geo.NewPath([]mechanism.Position2D{{X: 0, Y: 0}, {X: 100, Y: 0}})

	Step(m, path, 1.0, Config{})

	// ticker advances by BaseSpeed, arc distance is ticker*PixelsPerRadian
	require.InDelta(t, BaseSpeed, follower.Drive.Ticker, 1e-9)
	assert.InDelta(t, BaseSpeed*PixelsPerRadian, follower.X, 1e-9)
	assert.InDelta(t, 0.0, follower.Y, 1e-9)
}

func TestStep_PathFollowerAccumulates(t *testing.T) {
	m := mechanism.New()
	follower := &mechanism.Node{ID: "f", Drive: &mechanism.Drive{Mode: mechanism.DrivePathFollow}}
	m.AddNode(follower)
	path := geo.NewPath([]mechanism.Position2D{{X: 0, Y: 0}, {X: 100, Y: 0}})

	for i := 0; i < 10; i++ {
		Step(m, path, 1.0, Config{})
	}

	assert.InDelta(t, 10*BaseSpeed, follower.Drive.Ticker, 1e-9)
	assert.InDelta(t, 10*BaseSpeed*PixelsPerRadian, follower.X, 1e-9)
}

func TestStep_PathFollowerNilPathInert(t *testing.T) {
	m := mechanism.New()
	follower := &mechanism.Node{ID: "f", X: 7, Y: 8, Drive: &mechanism.Drive{Mode: mechanism.DrivePathFollow}}
	m.AddNode(follower)

	Step(m, nil, 1.0, Config{})

	assert.Equal(t, 7.0, follower.X)
	assert.Equal(t, 0.0, follower.Drive.Ticker)
}

func TestStep_ShortPathInert(t *testing.T) {
	m := mechanism.New()
	follower := &mechanism.Node{ID: "f", X: 7, Y: 8, Drive: &mechanism.Drive{Mode: mechanism.DrivePathFollow}}
	m.AddNode(follower)
	path := geo.NewPath([]mechanism.Position2D{{X: 1, Y: 1}})

	Step(m, path, 1.0, Config{})

	assert.Equal(t, 7.0, follower.X)
}

func TestStep_NonMotorNodesUntouched(t *testing.T) {
	m := mechanism.New()
	m.AddNode(&mechanism.Node{ID: "plain", X: 1, Y: 2})

	Step(m, nil, 1.0, Config{})

	n, _ := m.Node("plain")
	assert.Equal(t, mechanism.Position2D{X: 1, Y: 2}, n.Position())
}

func TestConfigOverrides(t *testing.T) {
	m, crank := rotaryRig(40)

	Step(m, nil, 1.0, Config{BaseSpeed: 0.1})

	assert.InDelta(t, 0.1, crank.Drive.Angle, 1e-9)
}
