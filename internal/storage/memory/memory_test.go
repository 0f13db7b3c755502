// internal/storage/memory/memory_test.go
package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/linkage-studio/engine/internal/config"
	"github.com/linkage-studio/engine/pkg/core"
)

func TestNew(t *testing.T) {
	cfg := config.MemoryConfig{
		OutputDir:      "/tmp/test",
		CompressOutput: true,
	}
	b := New(cfg)

	if b == nil {
		t.Fatal("New returned nil")
	}
	if b.cfg.OutputDir != "/tmp/test" {
		t.Errorf("expected OutputDir=/tmp/test, got %s", b.cfg.OutputDir)
	}
	if !b.cfg.CompressOutput {
		t.Error("expected CompressOutput=true")
	}
}

func TestInitAndClose(t *testing.T) {
	b := New(config.MemoryConfig{})

	if err := b.Init(); err != nil {
		t.Errorf("Init failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestStartSession_ResetsCollections(t *testing.T) {
	b := New(config.MemoryConfig{})

	session := &core.Session{
		Name:      "First Session",
		StartTime: time.Now(),
	}
	mech := &core.MechanismInfo{Name: "four-bar"}

	// Add some data before starting
	_ = b.RecordFrame(&core.Frame{Tick: 1})
	_ = b.RecordTrace(&core.TraceSample{Tick: 1, NodeID: "n1"})

	// Start a new session - should reset collections
	if err := b.StartSession(session, mech); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	if len(b.frames) != 0 {
		t.Errorf("expected frames reset, got %d", len(b.frames))
	}
	if len(b.traces) != 0 {
		t.Errorf("expected traces reset, got %d", len(b.traces))
	}
	if b.session.Name != "First Session" {
		t.Errorf("expected session name First Session, got %s", b.session.Name)
	}
	if b.mechanism.Name != "four-bar" {
		t.Errorf("expected mechanism name four-bar, got %s", b.mechanism.Name)
	}
}

func TestEndSession_NoSession_NoOp(t *testing.T) {
	b := New(config.MemoryConfig{})

	if err := b.EndSession(); err != nil {
		t.Errorf("EndSession without session should be a no-op, got %v", err)
	}
	if b.lastExportPath != "" {
		t.Errorf("expected no export, got %s", b.lastExportPath)
	}
}

func TestRecordFrame(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(&core.Session{Name: "s"}, &core.MechanismInfo{})

	frame := &core.Frame{
		Tick: 10,
		Poses: []core.NodePose{
			{NodeID: "n1", X: 180, Y: 360, Fixed: true},
			{NodeID: "n2", X: 260, Y: 360},
		},
	}
	if err := b.RecordFrame(frame); err != nil {
		t.Fatalf("RecordFrame failed: %v", err)
	}

	if len(b.frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(b.frames))
	}
	if len(b.frames[0].Poses) != 2 {
		t.Errorf("expected 2 poses, got %d", len(b.frames[0].Poses))
	}
}

func TestRecordTrace(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(&core.Session{Name: "s"}, &core.MechanismInfo{})

	if err := b.RecordTrace(&core.TraceSample{Tick: 5, NodeID: "n3", X: 1, Y: 2}); err != nil {
		t.Fatalf("RecordTrace failed: %v", err)
	}
	if len(b.traces) != 1 {
		t.Fatalf("expected 1 trace, got %d", len(b.traces))
	}
	if b.traces[0].NodeID != "n3" {
		t.Errorf("expected node n3, got %s", b.traces[0].NodeID)
	}
}

func TestRecordTopologyEvent(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(&core.Session{Name: "s"}, &core.MechanismInfo{})

	evt := &core.TopologyEvent{Tick: 3, Name: "add_node", Message: "n5"}
	if err := b.RecordTopologyEvent(evt); err != nil {
		t.Fatalf("RecordTopologyEvent failed: %v", err)
	}
	if len(b.topologyEvents) != 1 {
		t.Fatalf("expected 1 event, got %d", len(b.topologyEvents))
	}
}

func TestRecordMobilityEvent(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(&core.Session{Name: "s"}, &core.MechanismInfo{})

	evt := &core.MobilityEvent{Tick: 3, Mobility: 1, ActiveLinks: 4}
	if err := b.RecordMobilityEvent(evt); err != nil {
		t.Fatalf("RecordMobilityEvent failed: %v", err)
	}
	if len(b.mobilityEvents) != 1 {
		t.Fatalf("expected 1 event, got %d", len(b.mobilityEvents))
	}
}

func TestRecordPerfSample(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(&core.Session{Name: "s"}, &core.MechanismInfo{})

	if err := b.RecordPerfSample(&core.PerfSample{Tick: 600, TickDurationMs: 2.5}); err != nil {
		t.Fatalf("RecordPerfSample failed: %v", err)
	}
	if len(b.perfSamples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(b.perfSamples))
	}
}

func TestRecordTargetPath(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(&core.Session{Name: "s"}, &core.MechanismInfo{})

	path := &core.TargetPath{Tick: 1, Points: [][2]float64{{0, 0}, {10, 0}}}
	if err := b.RecordTargetPath(path); err != nil {
		t.Fatalf("RecordTargetPath failed: %v", err)
	}
	if len(b.targetPaths) != 1 {
		t.Fatalf("expected 1 path, got %d", len(b.targetPaths))
	}
}

func TestEndTick(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(&core.Session{Name: "s"}, &core.MechanismInfo{})

	_ = b.RecordFrame(&core.Frame{Tick: 10})
	_ = b.RecordFrame(&core.Frame{Tick: 250})
	_ = b.RecordFrame(&core.Frame{Tick: 30})

	if got := b.endTick(); got != 250 {
		t.Errorf("expected endTick=250, got %d", got)
	}
}

func TestGetExportMetadata(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(
		&core.Session{Name: "Crank Run", Tag: "demo"},
		&core.MechanismInfo{Name: "four-bar"},
	)
	_ = b.RecordFrame(&core.Frame{Tick: 120})

	meta := b.GetExportMetadata()
	if meta.SessionName != "Crank Run" {
		t.Errorf("expected session name Crank Run, got %s", meta.SessionName)
	}
	if meta.MechanismName != "four-bar" {
		t.Errorf("expected mechanism name four-bar, got %s", meta.MechanismName)
	}
	if meta.Tag != "demo" {
		t.Errorf("expected tag demo, got %s", meta.Tag)
	}
	if meta.DurationTicks != 120 {
		t.Errorf("expected 120 ticks, got %d", meta.DurationTicks)
	}
}

func TestConcurrentAccess(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(&core.Session{Name: "s"}, &core.MechanismInfo{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(tick uint64) {
			defer wg.Done()
			_ = b.RecordFrame(&core.Frame{Tick: tick})
			_ = b.RecordTrace(&core.TraceSample{Tick: tick, NodeID: "n1"})
			_ = b.GetExportMetadata()
		}(uint64(i))
	}
	wg.Wait()

	if len(b.frames) != 10 {
		t.Errorf("expected 10 frames, got %d", len(b.frames))
	}
	if len(b.traces) != 10 {
		t.Errorf("expected 10 traces, got %d", len(b.traces))
	}
}
