// Package sim owns the per-tick simulation pipeline: motor kinematics
// followed by constraint relaxation, with tracer recording and residual
// telemetry on the side. The engine has no internal timer; an external tick
// driver (the runner binary, the studio process, or a test) calls
// AdvanceTick at whatever cadence it likes, and each call is a complete,
// self-contained step.
package sim

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/linkage-studio/engine/internal/geo"
	"github.com/linkage-studio/engine/internal/mechanism"
	"github.com/linkage-studio/engine/internal/motor"
	"github.com/linkage-studio/engine/internal/solver"
	"github.com/linkage-studio/engine/internal/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Config tunes the engine. Zero values fall back to package defaults.
type Config struct {
	// Iterations is the relaxation pass count per tick.
	Iterations int
	// Motor overrides the drive-rate constants.
	Motor motor.Config
	// TraceCapacity bounds the tracer history.
	TraceCapacity int
}

// Engine drives one mechanism. It is single-writer: a tick must fully finish
// before the next one starts, and the engine must never be re-entered
// concurrently for the same mechanism (manual drags between ticks are fine;
// positions are re-read at the start of each tick).
type Engine struct {
	mech     *mechanism.Mechanism
	path     *geo.Path
	cfg      Config
	tick     uint64
	recorder *trace.Recorder

	// residual is the post-tick rest-length violation, stored as float bits
	// so the observable gauge callback can read it without locking.
	residual atomic.Uint64

	ticksProcessed metric.Int64Counter
}

// NewEngine creates an engine around the given mechanism. Uses the global
// OTel meter for metrics (no-op if not configured).
func NewEngine(m *mechanism.Mechanism, cfg Config) (*Engine, error) {
	e := &Engine{
		mech:     m,
		cfg:      cfg,
		recorder: trace.NewRecorder(cfg.TraceCapacity),
	}
	e.rebuildPath()

	mt := meter()

	var err error
	e.ticksProcessed, err = mt.Int64Counter(
		"sim.ticks.processed",
		metric.WithDescription("Total simulation ticks executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick counter: %w", err)
	}

	residualGauge, err := mt.Float64ObservableGauge(
		"sim.residual.error",
		metric.WithDescription("Summed rest-length violation after the last tick"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating residual gauge: %w", err)
	}
	_, err = mt.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveFloat64(residualGauge, e.Residual())
			return nil
		},
		residualGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("registering residual callback: %w", err)
	}

	return e, nil
}

// Mechanism returns the mechanism the engine drives.
func (e *Engine) Mechanism() *mechanism.Mechanism {
	return e.mech
}

// SetMechanism swaps in a different mechanism, resetting the tick counter
// and tracer history. Must not be called while a tick is in flight.
func (e *Engine) SetMechanism(m *mechanism.Mechanism) {
	e.mech = m
	e.tick = 0
	e.residual.Store(0)
	e.recorder.Clear()
	e.rebuildPath()
}

// Recorder returns the tracer recorder fed after each playing tick.
func (e *Engine) Recorder() *trace.Recorder {
	return e.recorder
}

// Tick returns the number of playing ticks executed so far.
func (e *Engine) Tick() uint64 {
	return e.tick
}

// Residual returns the rest-length violation left by the last solved tick.
func (e *Engine) Residual() float64 {
	return math.Float64frombits(e.residual.Load())
}

// SetTargetPath replaces the polyline traced by path-follower motors.
func (e *Engine) SetTargetPath(points []mechanism.Position2D) {
	e.mech.TargetPath = points
	e.rebuildPath()
}

// RefreshTargetPath re-derives the sampler after an external edit of
// Mechanism.TargetPath.
func (e *Engine) RefreshTargetPath() {
	e.rebuildPath()
}

func (e *Engine) rebuildPath() {
	e.path = geo.NewPath(e.mech.TargetPath)
}

// TargetPath returns the current arc-length sampler. Useful for path preview
// rendering in external collaborators.
func (e *Engine) TargetPath() *geo.Path {
	return e.path
}

// AdvanceTick executes one simulation step and returns the updated node
// positions.
//
// While paused with no held node the call is a pure no-op: motors do not
// advance and the solver does not run, so positions come back bit-identical.
// While paused with a held node only the solver runs, absorbing the manual
// drag into the link constraints. While playing, motors advance first and
// the solver then restores every reachable rest length, treating fixed,
// motor-driven and held nodes as immovable anchors for this tick.
func (e *Engine) AdvanceTick(playing bool, globalSpeed float64, held mechanism.NodeID) map[mechanism.NodeID]mechanism.Position2D {
	if !playing && held == "" {
		return e.mech.Positions()
	}

	if playing {
		motor.Step(e.mech, e.path, globalSpeed, e.cfg.Motor)
	}

	solver.Relax(e.mech, e.lockedSet(held), e.cfg.Iterations)
	e.residual.Store(math.Float64bits(e.mech.ResidualError()))

	if playing {
		e.tick++
		e.recorder.RecordTick(e.mech, e.tick)
		e.ticksProcessed.Add(context.Background(), 1,
			metric.WithAttributes(attribute.Bool("playing", playing)))
	}

	return e.mech.Positions()
}

// lockedSet classifies this tick's immovable anchors: ground anchors, motor
// nodes, and the externally held node if any.
func (e *Engine) lockedSet(held mechanism.NodeID) solver.LockedSet {
	locked := make(solver.LockedSet, len(e.mech.Nodes))
	for id, n := range e.mech.Nodes {
		if n.Fixed || n.IsMotor() {
			locked[id] = true
		}
	}
	if held != "" {
		locked[held] = true
	}
	return locked
}
