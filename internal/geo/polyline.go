package geo

import (
	"encoding/json"
	"fmt"

	"github.com/linkage-studio/engine/internal/mechanism"
	geom "github.com/peterstace/simplefeatures/geom"
)

// ParsePolyline parses a JSON array of coordinates into a point sequence.
// Input format: "[[x1,y1],[x2,y2],...]". This is the wire form the studio
// uses when assigning a target path.
func ParsePolyline(input string) ([]mechanism.Position2D, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse polyline JSON: %w", err)
	}

	points := make([]mechanism.Position2D, len(coords))
	for i, coord := range coords {
		if len(coord) < 2 {
			return nil, fmt.Errorf("%w: coordinate %d has insufficient values", ErrInvalidPolyline, i)
		}
		points[i] = mechanism.Position2D{X: coord[0], Y: coord[1]}
	}

	return points, nil
}

// LineString converts a point sequence into a geom.LineString for storage
// columns and path preview exports. Sequences shorter than two points have
// no line representation.
func LineString(points []mechanism.Position2D) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("%w: need at least 2 points, got %d", ErrInvalidPolyline, len(points))
	}

	flat := make([]float64, 0, len(points)*2)
	for _, pt := range points {
		flat = append(flat, pt.X, pt.Y)
	}

	seq := geom.NewSequence(flat, geom.DimXY)
	return geom.NewLineString(seq), nil
}

// PointsFromLineString converts a stored geom.LineString back into the
// sampler's point sequence.
func PointsFromLineString(ls geom.LineString) []mechanism.Position2D {
	seq := ls.Coordinates()
	points := make([]mechanism.Position2D, seq.Length())
	for i := 0; i < seq.Length(); i++ {
		xy := seq.GetXY(i)
		points[i] = mechanism.Position2D{X: xy.X, Y: xy.Y}
	}
	return points
}

// Point converts a position into a geom.Point for storage columns.
func Point(p mechanism.Position2D) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.X, Y: p.Y},
		Type: geom.DimXY,
	})
}
