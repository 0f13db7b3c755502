package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/linkage-studio/engine/internal/dispatcher"
	"github.com/linkage-studio/engine/internal/handlers"
	"github.com/linkage-studio/engine/internal/influx"
	"github.com/linkage-studio/engine/internal/mechanism"
	"github.com/linkage-studio/engine/pkg/core"
)

// registerCommandHandlers wires every studio command to the authoring
// service. Topology-changing commands also record a topology event and a
// fresh mobility analysis, so the recording captures edits as well as motion.
func registerCommandHandlers(d *dispatcher.Dispatcher) {
	d.Register(":VERSION:", func(e dispatcher.Event) (any, error) {
		return []string{CurrentEngineVersion, BuildDate}, nil
	})

	// Playback control
	d.Register(":PLAY:", func(e dispatcher.Event) (any, error) {
		playing.Store(true)
		return "ok", nil
	})

	d.Register(":PAUSE:", func(e dispatcher.Event) (any, error) {
		playing.Store(false)
		return "ok", nil
	})

	d.Register(":SPEED:", func(e dispatcher.Event) (any, error) {
		v, err := argFloat(e, 0)
		if err != nil {
			return nil, err
		}
		setGlobalSpeed(v)
		return "ok", nil
	})

	// Node editing
	d.Register(":NODE:ADD:", func(e dispatcher.Event) (any, error) {
		x, err := argFloat(e, 0)
		if err != nil {
			return nil, err
		}
		y, err := argFloat(e, 1)
		if err != nil {
			return nil, err
		}
		n := handlerService.AddNode(x, y)
		recordTopologyChange("node:add", string(n.ID))
		return string(n.ID), nil
	}, dispatcher.Logged())

	d.Register(":NODE:DEL:", func(e dispatcher.Event) (any, error) {
		id, err := argString(e, 0)
		if err != nil {
			return nil, err
		}
		handlerService.DeleteNode(mechanism.NodeID(id))
		recordTopologyChange("node:delete", id)
		return "ok", nil
	}, dispatcher.Logged())

	d.Register(":NODE:FIX:", func(e dispatcher.Event) (any, error) {
		id, err := argString(e, 0)
		if err != nil {
			return nil, err
		}
		fixed, err := argBool(e, 1)
		if err != nil {
			return nil, err
		}
		if err := handlerService.SetFixed(mechanism.NodeID(id), fixed); err != nil {
			return nil, err
		}
		recordTopologyChange("node:fix", fmt.Sprintf("%s=%t", id, fixed))
		return "ok", nil
	})

	d.Register(":NODE:TRACE:", func(e dispatcher.Event) (any, error) {
		id, err := argString(e, 0)
		if err != nil {
			return nil, err
		}
		tracer, err := argBool(e, 1)
		if err != nil {
			return nil, err
		}
		if err := handlerService.SetTracer(mechanism.NodeID(id), tracer); err != nil {
			return nil, err
		}
		return "ok", nil
	})

	// Manual drag: hold pins a node for the solver, move updates its position,
	// release lets the solver take over again.
	d.Register(":NODE:HOLD:", func(e dispatcher.Event) (any, error) {
		id, err := argString(e, 0)
		if err != nil {
			return nil, err
		}
		heldNode.Store(mechanism.NodeID(id))
		return "ok", nil
	})

	d.Register(":NODE:MOVE:", func(e dispatcher.Event) (any, error) {
		id, err := argString(e, 0)
		if err != nil {
			return nil, err
		}
		x, err := argFloat(e, 1)
		if err != nil {
			return nil, err
		}
		y, err := argFloat(e, 2)
		if err != nil {
			return nil, err
		}
		n, ok := engine.Mechanism().Node(mechanism.NodeID(id))
		if !ok {
			return nil, fmt.Errorf("node not found: %s", id)
		}
		n.X, n.Y = x, y
		if !playing.Load() {
			handlerService.RetargetRestLengths(n.ID)
		}
		return "ok", nil
	})

	d.Register(":NODE:RELEASE:", func(e dispatcher.Event) (any, error) {
		heldNode.Store(mechanism.NodeID(""))
		return "ok", nil
	})

	// Link editing
	d.Register(":LINK:ADD:", func(e dispatcher.Event) (any, error) {
		a, err := argString(e, 0)
		if err != nil {
			return nil, err
		}
		b, err := argString(e, 1)
		if err != nil {
			return nil, err
		}
		l, err := handlerService.AddLink(mechanism.NodeID(a), mechanism.NodeID(b))
		if err != nil {
			return nil, err
		}
		recordTopologyChange("link:add", string(l.ID))
		return string(l.ID), nil
	}, dispatcher.Logged())

	d.Register(":LINK:DEL:", func(e dispatcher.Event) (any, error) {
		id, err := argString(e, 0)
		if err != nil {
			return nil, err
		}
		handlerService.DeleteLink(mechanism.LinkID(id))
		recordTopologyChange("link:delete", id)
		return "ok", nil
	}, dispatcher.Logged())

	d.Register(":LINK:LENGTH:", func(e dispatcher.Event) (any, error) {
		id, err := argString(e, 0)
		if err != nil {
			return nil, err
		}
		length, err := argFloat(e, 1)
		if err != nil {
			return nil, err
		}
		if err := handlerService.SetRestLength(mechanism.LinkID(id), length); err != nil {
			return nil, err
		}
		return "ok", nil
	})

	// Motors
	d.Register(":MOTOR:ROTARY:", func(e dispatcher.Event) (any, error) {
		id, err := argString(e, 0)
		if err != nil {
			return nil, err
		}
		if _, err := handlerService.EnableRotaryMotor(mechanism.NodeID(id)); err != nil {
			return nil, err
		}
		recordTopologyChange("motor:rotary", id)
		return "ok", nil
	})

	d.Register(":MOTOR:PATH:", func(e dispatcher.Event) (any, error) {
		id, err := argString(e, 0)
		if err != nil {
			return nil, err
		}
		if _, err := handlerService.EnablePathMotor(mechanism.NodeID(id)); err != nil {
			return nil, err
		}
		recordTopologyChange("motor:path", id)
		return "ok", nil
	})

	d.Register(":MOTOR:OFF:", func(e dispatcher.Event) (any, error) {
		id, err := argString(e, 0)
		if err != nil {
			return nil, err
		}
		if err := handlerService.DisableMotor(mechanism.NodeID(id)); err != nil {
			return nil, err
		}
		recordTopologyChange("motor:off", id)
		return "ok", nil
	})

	d.Register(":MOTOR:SPEED:", func(e dispatcher.Event) (any, error) {
		id, err := argString(e, 0)
		if err != nil {
			return nil, err
		}
		v, err := argFloat(e, 1)
		if err != nil {
			return nil, err
		}
		return "ok", handlerService.SetSpeedMultiplier(mechanism.NodeID(id), v)
	})

	// Target path for path-follower motors
	d.Register(":PATH:SET:", func(e dispatcher.Event) (any, error) {
		raw, err := argString(e, 0)
		if err != nil {
			return nil, err
		}
		if err := handlerService.SetTargetPath(raw); err != nil {
			return nil, err
		}
		recordTargetPath()
		return "ok", nil
	})

	// Presets
	d.Register(":PRESET:FOURBAR:", func(e dispatcher.Event) (any, error) {
		params, err := fourBarArgs(e)
		if err != nil {
			return nil, err
		}
		nodes := handlerService.GenerateFourBar(params)
		recordTopologyChange("preset:fourbar", fmt.Sprintf("%d nodes", len(nodes)))
		return "ok", nil
	}, dispatcher.Logged())

	// Analysis and documents
	d.Register(":MOBILITY:", func(e dispatcher.Event) (any, error) {
		report := handlerService.Mobility()
		return fmt.Sprintf("mobility=%d links=%d %s",
			report.Mobility, report.ActiveLinks, report.Classification), nil
	})

	d.Register(":DOC:LOAD:", func(e dispatcher.Event) (any, error) {
		path, err := argString(e, 0)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := handlerService.LoadDocument(data); err != nil {
			return nil, err
		}
		recordTopologyChange("doc:load", path)
		return "ok", nil
	}, dispatcher.Logged())

	d.Register(":DOC:EXPORT:", func(e dispatcher.Event) (any, error) {
		path, err := argString(e, 0)
		if err != nil {
			return nil, err
		}
		data, err := handlerService.ExportDocument()
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, err
		}
		return "ok", nil
	})
}

// recordTopologyChange stores a topology event plus the mobility analysis it
// triggered, to the backend and to InfluxDB when metrics are on.
func recordTopologyChange(name, message string) {
	functionName := ":TOPOLOGY:"
	tick := engine.Tick()
	now := time.Now()

	topo := &core.TopologyEvent{Tick: tick, Time: now, Name: name, Message: message}
	if err := storageBackend.RecordTopologyEvent(topo); err != nil {
		SlogManager.WriteLog(functionName, fmt.Sprintf(`Error recording topology event: %v`, err), "ERROR")
	}

	report := handlerService.Mobility()
	mob := &core.MobilityEvent{
		Tick:           tick,
		Time:           now,
		Mobility:       report.Mobility,
		ActiveLinks:    report.ActiveLinks,
		Classification: string(report.Classification),
	}
	if err := storageBackend.RecordMobilityEvent(mob); err != nil {
		SlogManager.WriteLog(functionName, fmt.Sprintf(`Error recording mobility event: %v`, err), "ERROR")
	}

	if influxManager != nil {
		ctx := context.Background()
		bucket, point := influx.TopologyPoint(sessionName, topo)
		if err := influxManager.WritePoint(ctx, bucket, point); err != nil {
			SlogManager.WriteLog(functionName, fmt.Sprintf(`Error exporting topology point: %v`, err), "WARN")
		}
		bucket, point = influx.MobilityPoint(sessionName, mob)
		if err := influxManager.WritePoint(ctx, bucket, point); err != nil {
			SlogManager.WriteLog(functionName, fmt.Sprintf(`Error exporting mobility point: %v`, err), "WARN")
		}
	}
}

func recordTargetPath() {
	points := engine.Mechanism().TargetPath
	record := &core.TargetPath{
		Tick:   engine.Tick(),
		Time:   time.Now(),
		Points: make([][2]float64, 0, len(points)),
	}
	for _, p := range points {
		record.Points = append(record.Points, [2]float64{p.X, p.Y})
	}
	if err := storageBackend.RecordTargetPath(record); err != nil {
		SlogManager.WriteLog(":TOPOLOGY:", fmt.Sprintf(`Error recording target path: %v`, err), "ERROR")
	}
}

func fourBarArgs(e dispatcher.Event) (p handlers.FourBarParams, err error) {
	p = handlers.FourBarParams{CrankA: 1, CouplerB: 2.5, FollowerC: 2.5, GroundD: 3, EnforceGrashof: true}
	lengths := []*float64{&p.CrankA, &p.CouplerB, &p.FollowerC, &p.GroundD}
	for i := range lengths {
		if i >= len(e.Args) {
			break
		}
		*lengths[i], err = argFloat(e, i)
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

// readCommands feeds whitespace-separated stdin lines through the
// dispatcher: the first field is the command, the rest are its args.
func readCommands(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		result, err := eventDispatcher.Dispatch(dispatcher.Event{
			Command:   fields[0],
			Args:      fields[1:],
			Timestamp: time.Now(),
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		fmt.Println(result)
	}
}

func argString(e dispatcher.Event, i int) (string, error) {
	if i >= len(e.Args) {
		return "", fmt.Errorf("%s: missing argument %d", e.Command, i)
	}
	return e.Args[i], nil
}

func argFloat(e dispatcher.Event, i int) (float64, error) {
	s, err := argString(e, i)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: argument %d: %w", e.Command, i, err)
	}
	return v, nil
}

func argBool(e dispatcher.Event, i int) (bool, error) {
	s, err := argString(e, i)
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%s: argument %d: %w", e.Command, i, err)
	}
	return v, nil
}
