// internal/storage/memory/memory.go
package memory

import (
	"sync"

	"github.com/linkage-studio/engine/internal/config"
	"github.com/linkage-studio/engine/pkg/core"
)

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg       config.MemoryConfig
	session   *core.Session
	mechanism *core.MechanismInfo

	frames         []core.Frame
	traces         []core.TraceSample
	topologyEvents []core.TopologyEvent
	mobilityEvents []core.MobilityEvent
	perfSamples    []core.PerfSample
	targetPaths    []core.TargetPath

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg: cfg,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(session *core.Session, mechanism *core.MechanismInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = session
	b.mechanism = mechanism

	// Reset all collections
	b.frames = nil
	b.traces = nil
	b.topologyEvents = nil
	b.mobilityEvents = nil
	b.perfSamples = nil
	b.targetPaths = nil

	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil
	}
	return b.exportJSON()
}

// RecordFrame stores a full node snapshot for one tick
func (b *Backend) RecordFrame(f *core.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, *f)
	return nil
}

// RecordTrace stores a tracer sample
func (b *Backend) RecordTrace(s *core.TraceSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.traces = append(b.traces, *s)
	return nil
}

// RecordTopologyEvent stores an authoring event
func (b *Backend) RecordTopologyEvent(e *core.TopologyEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topologyEvents = append(b.topologyEvents, *e)
	return nil
}

// RecordMobilityEvent stores a mobility analysis result
func (b *Backend) RecordMobilityEvent(e *core.MobilityEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mobilityEvents = append(b.mobilityEvents, *e)
	return nil
}

// RecordPerfSample stores an engine performance sample
func (b *Backend) RecordPerfSample(p *core.PerfSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.perfSamples = append(b.perfSamples, *p)
	return nil
}

// RecordTargetPath stores an installed target path
func (b *Backend) RecordTargetPath(p *core.TargetPath) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targetPaths = append(b.targetPaths, *p)
	return nil
}

// endTick returns the highest tick seen in any recorded frame.
// Callers must hold at least a read lock.
func (b *Backend) endTick() uint64 {
	var max uint64
	for _, f := range b.frames {
		if f.Tick > max {
			max = f.Tick
		}
	}
	return max
}

// GetExportedFilePath returns the path of the last exported replay file
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata returns the upload metadata for the last session
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	meta := core.UploadMetadata{
		DurationTicks: b.endTick(),
	}
	if b.session != nil {
		meta.SessionName = b.session.Name
		meta.Tag = b.session.Tag
	}
	if b.mechanism != nil {
		meta.MechanismName = b.mechanism.Name
	}
	return meta
}
