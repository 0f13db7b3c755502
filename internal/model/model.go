// Package model defines the database schema for recorded sessions. Positions
// are stored as 2D geometry columns so recordings can be queried spatially.
package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels is a list of all the structs exported here which represent
// tables in the database schema
var DatabaseModels = []interface{}{
	&EngineInfo{},
	&MechanismDoc{},
	&Session{},
	&NodeState{},
	&TraceSample{},
	&TopologyEvent{},
	&MobilityResult{},
	&PerfSample{},
	&TargetPath{},
}

// DatabaseModelsSQLite is the model list for SQLite schemas. Geometry columns
// are stored as WKB blobs, so the full set migrates cleanly.
var DatabaseModelsSQLite = []interface{}{
	&EngineInfo{},
	&MechanismDoc{},
	&Session{},
	&NodeState{},
	&TraceSample{},
	&TopologyEvent{},
	&MobilityResult{},
	&PerfSample{},
	&TargetPath{},
}

// EngineInfo contains instance metadata about this engine install
type EngineInfo struct {
	gorm.Model
	InstanceName string `json:"instanceName" gorm:"size:127"`
	Description  string `json:"description" gorm:"size:255"`
	Website      string `json:"websiteURL" gorm:"size:255"`
}

func (*EngineInfo) TableName() string {
	return "engine_infos"
}

// MechanismDoc is a stored mechanism document plus its analysis summary
type MechanismDoc struct {
	gorm.Model
	Name           string         `json:"name" gorm:"size:200;index:idx_mechanism_name"`
	Document       datatypes.JSON `json:"document"`
	NodeCount      int            `json:"nodeCount"`
	LinkCount      int            `json:"linkCount"`
	Mobility       int            `json:"mobility"`
	Classification string         `json:"classification" gorm:"size:64"`
	Sessions       []Session
}

func (*MechanismDoc) TableName() string {
	return "mechanism_docs"
}

// GetOrInsert looks up an existing document by name, inserting if absent.
func (d *MechanismDoc) GetOrInsert(db *gorm.DB) (
	created bool,
	err error,
) {
	var existing MechanismDoc
	err = db.Where("name = ?", d.Name).First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			err = db.Create(d).Error
			return true, err
		}
		return false, err
	}
	*d = existing
	return false, nil
}

// Session is the main model for a recording run
type Session struct {
	gorm.Model
	Name             string    `json:"name" gorm:"size:200"`
	StartTime        time.Time `json:"startTime" gorm:"type:timestamptz;index:idx_session_start"`
	EngineVersion    string    `json:"engineVersion" gorm:"size:64"`
	TickRate         int       `json:"tickRate" gorm:"default:60"`
	SolverIterations int       `json:"solverIterations" gorm:"default:10"`
	GlobalSpeed      float64   `json:"globalSpeed" gorm:"default:1.0"`
	Tag              string    `json:"tag" gorm:"size:127"`
	MechanismDocID   uint
	MechanismDoc     MechanismDoc `gorm:"foreignkey:MechanismDocID"`

	NodeStates      []NodeState
	TraceSamples    []TraceSample
	TopologyEvents  []TopologyEvent
	MobilityResults []MobilityResult
	PerfSamples     []PerfSample
	TargetPaths     []TargetPath
}

func (*Session) TableName() string {
	return "sessions"
}

// NodeState is one node's pose at one tick
type NodeState struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time" gorm:"type:timestamptz;"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_nodestate_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick      uint64    `json:"tick" gorm:"index:idx_nodestate_tick"`
	NodeID    string    `json:"nodeId" gorm:"size:32;index:idx_nodestate_node_id"`

	Position geom.Point `json:"position"`
	Fixed    bool       `json:"fixed" gorm:"default:false"`
	Driven   bool       `json:"driven" gorm:"default:false"`
}

func (*NodeState) TableName() string {
	return "node_states"
}

// TraceSample is one recorded tracer point
type TraceSample struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time" gorm:"type:timestamptz;"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_tracesample_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick      uint64    `json:"tick" gorm:"index:idx_tracesample_tick"`
	NodeID    string    `json:"nodeId" gorm:"size:32;index:idx_tracesample_node_id"`

	Position geom.Point `json:"position"`
}

func (*TraceSample) TableName() string {
	return "trace_samples"
}

// TopologyEvent is an authoring change to the mechanism graph
type TopologyEvent struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time      `json:"time" gorm:"type:timestamptz;"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_topologyevent_session_id"`
	Session   Session        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick      uint64         `json:"tick" gorm:"index:idx_topologyevent_tick;"`
	Name      string         `json:"name" gorm:"size:64"`
	Message   string         `json:"message"`
	ExtraData datatypes.JSON `json:"extraData" gorm:"type:jsonb;default:'{}'"`
}

func (*TopologyEvent) TableName() string {
	return "topology_events"
}

// MobilityResult is a Gruebler analysis outcome tied to a session tick
type MobilityResult struct {
	ID             uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time           time.Time `json:"time" gorm:"type:timestamptz;"`
	SessionID      uint      `json:"sessionId" gorm:"index:idx_mobilityresult_session_id"`
	Session        Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick           uint64    `json:"tick" gorm:"index:idx_mobilityresult_tick;"`
	Mobility       int       `json:"mobility"`
	ActiveLinks    int       `json:"activeLinks"`
	Classification string    `json:"classification" gorm:"size:64"`
}

func (*MobilityResult) TableName() string {
	return "mobility_results"
}

// PerfSample records engine performance metrics
type PerfSample struct {
	Time           time.Time    `json:"time" gorm:"type:timestamptz;index:idx_perfsample_time"`
	SessionID      uint         `json:"sessionId" gorm:"index:idx_perfsample_session_id"`
	Session        Session      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick           uint64       `json:"tick" gorm:"index:idx_perfsample_tick;"`
	ResidualError  float64      `json:"residualError"`
	TickDurationMs float32      `json:"tickDurationMs"`
	QueueLengths   QueueLengths `json:"queueLengths" gorm:"embedded;embeddedPrefix:queue_"`
}

func (*PerfSample) TableName() string {
	return "perf_samples"
}

// QueueLengths is the model for pending write queue lengths
type QueueLengths struct {
	Frames uint16 `json:"frames"`
	Traces uint16 `json:"traces"`
}

// TargetPath is the polyline installed for path-follower motors
type TargetPath struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time" gorm:"type:timestamptz;"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_targetpath_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick      uint64    `json:"tick"`

	Polyline geom.LineString `json:"polyline"`
}

func (*TargetPath) TableName() string {
	return "target_paths"
}
