package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkage-studio/engine/internal/mechanism"
)

// elbowPath is (0,0)->(10,0)->(10,10), total arc length 20.
func elbowPath() *Path {
	return NewPath([]mechanism.Position2D{
		{X: 0, Y: 0},
		{X: 10, Y: 0},
		{X: 10, Y: 10},
	})
}

func TestPointAtDistance(t *testing.T) {
	p := elbowPath()
	require.Equal(t, 3, p.Len())
	require.InDelta(t, 20.0, p.TotalLength(), 1e-9)

	tests := []struct {
		name string
		d    float64
		want mechanism.Position2D
	}{
		{"start", 0, mechanism.Position2D{X: 0, Y: 0}},
		{"first segment", 5, mechanism.Position2D{X: 5, Y: 0}},
		{"corner", 10, mechanism.Position2D{X: 10, Y: 0}},
		{"second segment", 12, mechanism.Position2D{X: 10, Y: 2}},
		{"full length wraps to start", 20, mechanism.Position2D{X: 0, Y: 0}},
		{"beyond length wraps", 25, mechanism.Position2D{X: 5, Y: 0}},
		{"negative wraps backwards", -5, mechanism.Position2D{X: 10, Y: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt, ok := p.PointAtDistance(tt.d)
			require.True(t, ok)
			assert.InDelta(t, tt.want.X, pt.X, 1e-9)
			assert.InDelta(t, tt.want.Y, pt.Y, 1e-9)
		})
	}
}

func TestPointAtDistance_DegeneratePaths(t *testing.T) {
	_, ok := NewPath(nil).PointAtDistance(0)
	assert.False(t, ok)

	_, ok = NewPath([]mechanism.Position2D{{X: 1, Y: 1}}).PointAtDistance(0)
	assert.False(t, ok)

	// two coincident points have no arc length
	_, ok = NewPath([]mechanism.Position2D{{X: 1, Y: 1}, {X: 1, Y: 1}}).PointAtDistance(0)
	assert.False(t, ok)
}

func TestPointAtDistance_SkipsRepeatedPoints(t *testing.T) {
	p := NewPath([]mechanism.Position2D{
		{X: 0, Y: 0},
		{X: 0, Y: 0},
		{X: 10, Y: 0},
	})
	require.InDelta(t, 10.0, p.TotalLength(), 1e-9)

	pt, ok := p.PointAtDistance(4)
	require.True(t, ok)
	assert.InDelta(t, 4.0, pt.X, 1e-9)
	assert.InDelta(t, 0.0, pt.Y, 1e-9)
}

func TestPoints(t *testing.T) {
	pts := []mechanism.Position2D{{X: 0, Y: 0}, {X: 3, Y: 4}}
	p := NewPath(pts)
	assert.Equal(t, pts, p.Points())
	assert.InDelta(t, 5.0, p.TotalLength(), 1e-9)
}
