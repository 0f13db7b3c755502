// Package core defines the plain recording types shared by every storage
// backend. They carry no persistence tags; the gorm layer converts them to
// database rows and the websocket layer streams them as JSON.
package core

import (
	"encoding/json"
	"time"
)

// Session describes one recording run of a mechanism.
type Session struct {
	ID               uint      `json:"id"`
	Name             string    `json:"name"`
	StartTime        time.Time `json:"startTime"`
	EngineVersion    string    `json:"engineVersion"`
	TickRate         int       `json:"tickRate"`
	SolverIterations int       `json:"solverIterations"`
	GlobalSpeed      float64   `json:"globalSpeed"`
	Tag              string    `json:"tag"`
}

// MechanismInfo describes the mechanism a session records.
type MechanismInfo struct {
	ID             uint            `json:"id"`
	Name           string          `json:"name"`
	Document       json.RawMessage `json:"document"`
	NodeCount      int             `json:"nodeCount"`
	LinkCount      int             `json:"linkCount"`
	Mobility       int             `json:"mobility"`
	Classification string          `json:"classification"`
}

// NodePose is one node's position at a tick.
type NodePose struct {
	NodeID string  `json:"nodeId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Fixed  bool    `json:"fixed"`
	Driven bool    `json:"driven"`
}

// Frame is the full node snapshot produced by one simulation tick.
type Frame struct {
	Tick     uint64     `json:"tick"`
	Time     time.Time  `json:"time"`
	Residual float64    `json:"residual"`
	Poses    []NodePose `json:"poses"`
}

// TraceSample is one recorded tracer point.
type TraceSample struct {
	Tick   uint64  `json:"tick"`
	NodeID string  `json:"nodeId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// TopologyEvent records an authoring change to the mechanism graph.
type TopologyEvent struct {
	Tick      uint64          `json:"tick"`
	Time      time.Time       `json:"time"`
	Name      string          `json:"name"`
	Message   string          `json:"message"`
	ExtraData json.RawMessage `json:"extraData,omitempty"`
}

// MobilityEvent records a mobility analysis result, emitted after each
// topology edit.
type MobilityEvent struct {
	Tick           uint64    `json:"tick"`
	Time           time.Time `json:"time"`
	Mobility       int       `json:"mobility"`
	ActiveLinks    int       `json:"activeLinks"`
	Classification string    `json:"classification"`
}

// PerfSample records engine performance at sampling intervals.
type PerfSample struct {
	Tick           uint64    `json:"tick"`
	Time           time.Time `json:"time"`
	ResidualError  float64   `json:"residualError"`
	TickDurationMs float32   `json:"tickDurationMs"`
	FrameQueueLen  uint16    `json:"frameQueueLen"`
	TraceQueueLen  uint16    `json:"traceQueueLen"`
}

// TargetPath records the polyline installed for path-follower motors.
type TargetPath struct {
	Tick   uint64       `json:"tick"`
	Time   time.Time    `json:"time"`
	Points [][2]float64 `json:"points"`
}

// UploadMetadata describes an exported recording for the upload API.
type UploadMetadata struct {
	MechanismName string `json:"mechanismName"`
	SessionName   string `json:"sessionName"`
	DurationTicks uint64 `json:"durationTicks"`
	Tag           string `json:"tag"`
}
