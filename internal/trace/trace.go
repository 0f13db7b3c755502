// Package trace records the paths swept by tracer-flagged nodes during
// playback and exports them as CSV for analysis outside the studio.
package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/linkage-studio/engine/internal/mechanism"
)

// DefaultCapacity bounds the in-memory trace history. Once full, the oldest
// samples are dropped so a long-running simulation cannot grow without limit.
const DefaultCapacity = 3000

// Sample is one recorded tracer position.
type Sample struct {
	Tick   uint64            `json:"tick"`
	NodeID mechanism.NodeID  `json:"nodeId"`
	X      float64           `json:"x"`
	Y      float64           `json:"y"`
}

// Ring is a bounded, thread-safe sample buffer.
type Ring struct {
	mu       sync.Mutex
	samples  []Sample
	capacity int
}

// NewRing creates a ring holding at most capacity samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{capacity: capacity}
}

// Push appends samples, evicting the oldest once the capacity is exceeded.
func (r *Ring) Push(samples ...Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, samples...)
	if overflow := len(r.samples) - r.capacity; overflow > 0 {
		r.samples = append(r.samples[:0], r.samples[overflow:]...)
	}
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Snapshot copies out the buffered samples, oldest first.
func (r *Ring) Snapshot() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Clear drops all buffered samples.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = r.samples[:0]
}

// Recorder collects tracer-node positions tick by tick.
type Recorder struct {
	ring *Ring
}

// NewRecorder creates a recorder with the given history capacity.
func NewRecorder(capacity int) *Recorder {
	return &Recorder{ring: NewRing(capacity)}
}

// RecordTick appends one sample per tracer-flagged node.
func (rec *Recorder) RecordTick(m *mechanism.Mechanism, tick uint64) {
	for _, n := range m.Nodes {
		if !n.Tracer {
			continue
		}
		rec.ring.Push(Sample{Tick: tick, NodeID: n.ID, X: n.X, Y: n.Y})
	}
}

// Samples returns the recorded history, oldest first.
func (rec *Recorder) Samples() []Sample {
	return rec.ring.Snapshot()
}

// Clear drops the recorded history.
func (rec *Recorder) Clear() {
	rec.ring.Clear()
}

// WriteCSV writes the recorded history as CSV with a header row.
func (rec *Recorder) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"tick", "node", "x", "y"}); err != nil {
		return fmt.Errorf("failed to write trace header: %w", err)
	}
	for _, s := range rec.ring.Snapshot() {
		record := []string{
			strconv.FormatUint(s.Tick, 10),
			string(s.NodeID),
			strconv.FormatFloat(s.X, 'f', -1, 64),
			strconv.FormatFloat(s.Y, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write trace sample: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// LinkPoint returns the point a clamped fraction t along a link, for
// coupler-curve style tracing of a point on a bar rather than at a joint.
// ok is false when the link or either endpoint no longer exists.
func LinkPoint(m *mechanism.Mechanism, id mechanism.LinkID, t float64) (mechanism.Position2D, bool) {
	l, ok := m.Link(id)
	if !ok {
		return mechanism.Position2D{}, false
	}
	source, target, ok := m.Endpoints(l)
	if !ok {
		return mechanism.Position2D{}, false
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return mechanism.Position2D{
		X: source.X + (target.X-source.X)*t,
		Y: source.Y + (target.Y-source.Y)*t,
	}, true
}
