// Package convert maps core recording types to GORM rows.
package convert

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/linkage-studio/engine/internal/model"
	"github.com/linkage-studio/engine/pkg/core"
)

// point builds a 2D geometry point from canvas coordinates.
func point(x, y float64) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Type: geom.DimXY,
	})
}

// lineString builds a 2D geometry linestring. Returns the zero LineString
// when fewer than two points are given.
func lineString(points [][2]float64) geom.LineString {
	if len(points) < 2 {
		return geom.LineString{}
	}
	coords := make([]float64, 0, len(points)*2)
	for _, p := range points {
		coords = append(coords, p[0], p[1])
	}
	seq := geom.NewSequence(coords, geom.DimXY)
	return geom.NewLineString(seq)
}

// SessionToModel converts a core.Session plus its mechanism doc ID to a
// GORM Session row.
func SessionToModel(s *core.Session, mechanismDocID uint) model.Session {
	return model.Session{
		Name:             s.Name,
		StartTime:        s.StartTime,
		EngineVersion:    s.EngineVersion,
		TickRate:         s.TickRate,
		SolverIterations: s.SolverIterations,
		GlobalSpeed:      s.GlobalSpeed,
		Tag:              s.Tag,
		MechanismDocID:   mechanismDocID,
	}
}

// MechanismToModel converts a core.MechanismInfo to a GORM MechanismDoc row.
func MechanismToModel(m *core.MechanismInfo) model.MechanismDoc {
	return model.MechanismDoc{
		Name:           m.Name,
		Document:       datatypes.JSON(m.Document),
		NodeCount:      m.NodeCount,
		LinkCount:      m.LinkCount,
		Mobility:       m.Mobility,
		Classification: m.Classification,
	}
}

// FrameToNodeStates flattens a frame into one NodeState row per node.
func FrameToNodeStates(sessionID uint, f *core.Frame) []model.NodeState {
	states := make([]model.NodeState, 0, len(f.Poses))
	for _, p := range f.Poses {
		states = append(states, model.NodeState{
			Time:      f.Time,
			SessionID: sessionID,
			Tick:      f.Tick,
			NodeID:    p.NodeID,
			Position:  point(p.X, p.Y),
			Fixed:     p.Fixed,
			Driven:    p.Driven,
		})
	}
	return states
}

// TraceToModel converts a core.TraceSample to a GORM row. Tracer points carry
// no wall-clock time of their own, so the row is stamped at conversion.
func TraceToModel(sessionID uint, s *core.TraceSample) model.TraceSample {
	return model.TraceSample{
		Time:      time.Now(),
		SessionID: sessionID,
		Tick:      s.Tick,
		NodeID:    s.NodeID,
		Position:  point(s.X, s.Y),
	}
}

// TopologyEventToModel converts a core.TopologyEvent to a GORM row.
func TopologyEventToModel(sessionID uint, e *core.TopologyEvent) model.TopologyEvent {
	extra := datatypes.JSON(`{}`)
	if len(e.ExtraData) > 0 {
		extra = datatypes.JSON(e.ExtraData)
	}
	return model.TopologyEvent{
		Time:      e.Time,
		SessionID: sessionID,
		Tick:      e.Tick,
		Name:      e.Name,
		Message:   e.Message,
		ExtraData: extra,
	}
}

// MobilityEventToModel converts a core.MobilityEvent to a GORM row.
func MobilityEventToModel(sessionID uint, e *core.MobilityEvent) model.MobilityResult {
	return model.MobilityResult{
		Time:           e.Time,
		SessionID:      sessionID,
		Tick:           e.Tick,
		Mobility:       e.Mobility,
		ActiveLinks:    e.ActiveLinks,
		Classification: e.Classification,
	}
}

// PerfSampleToModel converts a core.PerfSample to a GORM row.
func PerfSampleToModel(sessionID uint, p *core.PerfSample) model.PerfSample {
	return model.PerfSample{
		Time:           p.Time,
		SessionID:      sessionID,
		Tick:           p.Tick,
		ResidualError:  p.ResidualError,
		TickDurationMs: p.TickDurationMs,
		QueueLengths: model.QueueLengths{
			Frames: p.FrameQueueLen,
			Traces: p.TraceQueueLen,
		},
	}
}

// TargetPathToModel converts a core.TargetPath to a GORM row.
func TargetPathToModel(sessionID uint, p *core.TargetPath) model.TargetPath {
	return model.TargetPath{
		Time:      p.Time,
		SessionID: sessionID,
		Tick:      p.Tick,
		Polyline:  lineString(p.Points),
	}
}
