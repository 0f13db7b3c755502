package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkage-studio/engine/internal/logging"
	"github.com/linkage-studio/engine/internal/mechanism"
	"github.com/linkage-studio/engine/internal/sim"
	"github.com/linkage-studio/engine/pkg/core"
)

// captureBackend records perf samples and reports canned queue lengths.
type captureBackend struct {
	mu      sync.Mutex
	samples []core.PerfSample
	frames  int
	traces  int
}

func (b *captureBackend) Init() error  { return nil }
func (b *captureBackend) Close() error { return nil }
func (b *captureBackend) StartSession(*core.Session, *core.MechanismInfo) error {
	return nil
}
func (b *captureBackend) EndSession() error                              { return nil }
func (b *captureBackend) RecordFrame(*core.Frame) error                  { return nil }
func (b *captureBackend) RecordTrace(*core.TraceSample) error            { return nil }
func (b *captureBackend) RecordTargetPath(*core.TargetPath) error        { return nil }
func (b *captureBackend) RecordTopologyEvent(*core.TopologyEvent) error  { return nil }
func (b *captureBackend) RecordMobilityEvent(*core.MobilityEvent) error  { return nil }
func (b *captureBackend) RecordPerfSample(p *core.PerfSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = append(b.samples, *p)
	return nil
}

func (b *captureBackend) QueueLengths() (frames, traces int) {
	return b.frames, b.traces
}

func (b *captureBackend) recorded() []core.PerfSample {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]core.PerfSample, len(b.samples))
	copy(out, b.samples)
	return out
}

func newTestEngine(t *testing.T) *sim.Engine {
	t.Helper()
	engine, err := sim.NewEngine(mechanism.New(), sim.Config{})
	require.NoError(t, err)
	return engine
}

func newTestService(t *testing.T, backend *captureBackend) *Service {
	t.Helper()
	return NewService(Dependencies{
		LogManager:  logging.NewSlogManager(),
		Engine:      newTestEngine(t),
		Backend:     backend,
		SessionName: "test session",
	})
}

func TestNewService(t *testing.T) {
	s := newTestService(t, &captureBackend{})
	assert.NotNil(t, s)
	assert.False(t, s.IsRunning())
}

func TestSample_IncludesQueueLengths(t *testing.T) {
	backend := &captureBackend{frames: 42, traces: 7}
	s := newTestService(t, backend)
	s.ObserveTickDuration(12 * time.Millisecond)

	sample := s.Sample()
	assert.Equal(t, uint64(0), sample.Tick)
	assert.Equal(t, uint16(42), sample.FrameQueueLen)
	assert.Equal(t, uint16(7), sample.TraceQueueLen)
	assert.InDelta(t, 12.0, float64(sample.TickDurationMs), 0.01)
	assert.False(t, sample.Time.IsZero())
}

func TestSample_ClampsQueueLengths(t *testing.T) {
	backend := &captureBackend{frames: 1 << 20, traces: -1}
	s := newTestService(t, backend)

	sample := s.Sample()
	assert.Equal(t, uint16(65535), sample.FrameQueueLen)
	assert.Equal(t, uint16(0), sample.TraceQueueLen)
}

// plainBackend does not implement QueueLengthProvider.
type plainBackend struct{}

func (plainBackend) Init() error  { return nil }
func (plainBackend) Close() error { return nil }
func (plainBackend) StartSession(*core.Session, *core.MechanismInfo) error {
	return nil
}
func (plainBackend) EndSession() error                             { return nil }
func (plainBackend) RecordFrame(*core.Frame) error                 { return nil }
func (plainBackend) RecordTrace(*core.TraceSample) error           { return nil }
func (plainBackend) RecordTargetPath(*core.TargetPath) error       { return nil }
func (plainBackend) RecordTopologyEvent(*core.TopologyEvent) error { return nil }
func (plainBackend) RecordMobilityEvent(*core.MobilityEvent) error { return nil }
func (plainBackend) RecordPerfSample(*core.PerfSample) error       { return nil }

func TestSample_BackendWithoutQueueLengths(t *testing.T) {
	s := NewService(Dependencies{
		LogManager: logging.NewSlogManager(),
		Engine:     newTestEngine(t),
		Backend:    plainBackend{},
	})

	sample := s.Sample()
	assert.Equal(t, uint16(0), sample.FrameQueueLen)
	assert.Equal(t, uint16(0), sample.TraceQueueLen)
}

func TestStartStop(t *testing.T) {
	backend := &captureBackend{}
	s := newTestService(t, backend)

	s.Start(5 * time.Millisecond)
	assert.True(t, s.IsRunning())
	s.Start(5 * time.Millisecond) // second Start is a no-op

	assert.Eventually(t, func() bool {
		return len(backend.recorded()) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop() // second Stop must not panic
}

func TestRecord_WritesToBackend(t *testing.T) {
	backend := &captureBackend{frames: 3, traces: 1}
	s := newTestService(t, backend)
	s.ObserveTickDuration(2 * time.Millisecond)

	s.record()

	samples := backend.recorded()
	require.Len(t, samples, 1)
	assert.Equal(t, uint16(3), samples[0].FrameQueueLen)
	assert.Equal(t, uint16(1), samples[0].TraceQueueLen)
}
