// internal/storage/storage.go
package storage

import "github.com/linkage-studio/engine/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(session *core.Session, mechanism *core.MechanismInfo) error
	EndSession() error

	// Simulation recording
	RecordFrame(f *core.Frame) error
	RecordTrace(s *core.TraceSample) error
	RecordTargetPath(p *core.TargetPath) error

	// Authoring and analysis recording
	RecordTopologyEvent(e *core.TopologyEvent) error
	RecordMobilityEvent(e *core.MobilityEvent) error

	// Engine health
	RecordPerfSample(p *core.PerfSample) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the studio web frontend.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
