package streaming

import (
	"encoding/json"

	"github.com/linkage-studio/engine/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession  = "start_session"
	TypeEndSession    = "end_session"
	TypeFrame         = "frame"
	TypeTraceSample   = "trace_sample"
	TypeTopologyEvent = "topology_event"
	TypeMobilityEvent = "mobility_event"
	TypePerfSample    = "perf_sample"
	TypeTargetPath    = "target_path"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload carries session and mechanism data.
type StartSessionPayload struct {
	Session   *core.Session       `json:"session"`
	Mechanism *core.MechanismInfo `json:"mechanism"`
}
