// Package monitor samples engine health on an interval and records it to the
// active storage backend and, when configured, InfluxDB.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linkage-studio/engine/internal/influx"
	"github.com/linkage-studio/engine/internal/logging"
	"github.com/linkage-studio/engine/internal/sim"
	"github.com/linkage-studio/engine/internal/storage"
	"github.com/linkage-studio/engine/pkg/core"
)

// QueueLengthProvider is an optional interface for backends that buffer
// writes and can report their backlog.
type QueueLengthProvider interface {
	QueueLengths() (frames, traces int)
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager  *logging.SlogManager
	Engine      *sim.Engine
	Backend     storage.Backend
	Influx      *influx.Manager // nil disables metric export
	SessionName string
}

// Service manages periodic engine health sampling
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}

	// lastTickDuration is fed by the tick driver, in nanoseconds.
	lastTickDuration atomic.Int64
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// ObserveTickDuration records the wall-clock cost of the latest tick.
func (s *Service) ObserveTickDuration(d time.Duration) {
	s.lastTickDuration.Store(int64(d))
}

// Sample builds a point-in-time perf sample from the engine and backend.
func (s *Service) Sample() core.PerfSample {
	sample := core.PerfSample{
		Tick:           s.deps.Engine.Tick(),
		Time:           time.Now(),
		ResidualError:  s.deps.Engine.Residual(),
		TickDurationMs: float32(time.Duration(s.lastTickDuration.Load()).Seconds() * 1000),
	}

	if p, ok := s.deps.Backend.(QueueLengthProvider); ok {
		frames, traces := p.QueueLengths()
		sample.FrameQueueLen = clampUint16(frames)
		sample.TraceQueueLen = clampUint16(traces)
	}

	return sample
}

// Start launches the sampling goroutine. Calling Start on a running service
// is a no-op.
func (s *Service) Start(interval time.Duration) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	go s.run(interval)
}

// Stop halts the sampling goroutine.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	s.isRunning = false
	close(s.stopChan)
}

func (s *Service) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.record()
		}
	}
}

// record takes one sample and fans it out.
func (s *Service) record() {
	sample := s.Sample()

	if err := s.deps.Backend.RecordPerfSample(&sample); err != nil {
		s.deps.LogManager.WriteLog(":MONITOR:", fmt.Sprintf("Failed to record perf sample: %v", err), "ERROR")
	}

	if s.deps.Influx != nil {
		bucket, point := influx.PerfSamplePoint(s.deps.SessionName, &sample)
		if err := s.deps.Influx.WritePoint(context.Background(), bucket, point); err != nil {
			s.deps.LogManager.WriteLog(":MONITOR:", fmt.Sprintf("Failed to export perf sample: %v", err), "WARN")
		}
	}
}

func clampUint16(n int) uint16 {
	if n < 0 {
		return 0
	}
	if n > int(^uint16(0)) {
		return ^uint16(0)
	}
	return uint16(n)
}
