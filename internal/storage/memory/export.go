// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReplayExport is the root JSON structure read by the studio playback view
type ReplayExport struct {
	EngineVersion    string          `json:"engineVersion"`
	SessionName      string          `json:"sessionName"`
	MechanismName    string          `json:"mechanismName"`
	StartTime        string          `json:"startTime"`
	TickRate         int             `json:"tickRate"`
	SolverIterations int             `json:"solverIterations"`
	GlobalSpeed      float64         `json:"globalSpeed"`
	EndTick          uint64          `json:"endTick"`
	Mobility         int             `json:"mobility"`
	Classification   string          `json:"classification"`
	Mechanism        json.RawMessage `json:"mechanism"`
	Nodes            []NodeJSON      `json:"nodes"`
	Events           [][]any         `json:"events"`
	Traces           [][]any         `json:"traces"`
	TargetPaths      [][]any         `json:"targetPaths"`
}

// NodeJSON represents one node's recorded motion
type NodeJSON struct {
	ID        string  `json:"id"`
	Fixed     bool    `json:"fixed"`
	Driven    bool    `json:"driven"`
	Positions [][]any `json:"positions"`
}

// exportJSON writes the session data to a gzipped JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	// Build filename
	sessionName := strings.ReplaceAll(b.session.Name, " ", "_")
	sessionName = strings.ReplaceAll(sessionName, ":", "_")
	timestamp := b.session.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", sessionName, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", sessionName, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write file
	if b.cfg.CompressOutput {
		if err := b.writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := b.writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() ReplayExport {
	export := ReplayExport{
		EngineVersion:    b.session.EngineVersion,
		SessionName:      b.session.Name,
		StartTime:        b.session.StartTime.UTC().Format("2006-01-02T15:04:05Z07:00"),
		TickRate:         b.session.TickRate,
		SolverIterations: b.session.SolverIterations,
		GlobalSpeed:      b.session.GlobalSpeed,
		Nodes:            make([]NodeJSON, 0),
		Events:           make([][]any, 0),
		Traces:           make([][]any, 0),
		TargetPaths:      make([][]any, 0),
	}

	if b.mechanism != nil {
		export.MechanismName = b.mechanism.Name
		export.Mobility = b.mechanism.Mobility
		export.Classification = b.mechanism.Classification
		export.Mechanism = b.mechanism.Document
	}

	// Group frames into per-node position tracks, preserving first-seen order
	nodeOrder := make([]string, 0)
	nodes := make(map[string]*NodeJSON)

	for _, frame := range b.frames {
		for _, pose := range frame.Poses {
			node, ok := nodes[pose.NodeID]
			if !ok {
				node = &NodeJSON{
					ID:        pose.NodeID,
					Positions: make([][]any, 0),
				}
				nodes[pose.NodeID] = node
				nodeOrder = append(nodeOrder, pose.NodeID)
			}
			node.Fixed = pose.Fixed
			node.Driven = pose.Driven
			node.Positions = append(node.Positions, []any{
				frame.Tick,
				[]float64{pose.X, pose.Y},
			})
		}
	}

	for _, id := range nodeOrder {
		export.Nodes = append(export.Nodes, *nodes[id])
	}

	export.EndTick = b.endTick()

	// Topology events
	// Format: [tick, name, message]
	for _, evt := range b.topologyEvents {
		export.Events = append(export.Events, []any{
			evt.Tick,
			evt.Name,
			evt.Message,
		})
	}

	// Mobility events
	// Format: [tick, "mobility", mobility, activeLinks, classification]
	for _, evt := range b.mobilityEvents {
		export.Events = append(export.Events, []any{
			evt.Tick,
			"mobility",
			evt.Mobility,
			evt.ActiveLinks,
			evt.Classification,
		})
	}

	// Tracer samples
	// Format: [tick, nodeId, [x, y]]
	for _, s := range b.traces {
		export.Traces = append(export.Traces, []any{
			s.Tick,
			s.NodeID,
			[]float64{s.X, s.Y},
		})
	}

	// Target paths
	// Format: [tick, points]
	for _, p := range b.targetPaths {
		export.TargetPaths = append(export.TargetPaths, []any{
			p.Tick,
			p.Points,
		})
	}

	return export
}

func (b *Backend) writeJSON(path string, data ReplayExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func (b *Backend) writeGzipJSON(path string, data ReplayExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
