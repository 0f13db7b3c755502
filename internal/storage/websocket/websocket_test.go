package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkage-studio/engine/pkg/core"
	"github.com/linkage-studio/engine/pkg/streaming"
)

// testServer is a minimal WebSocket server that records received envelopes
// and acks session lifecycle messages.
type testServer struct {
	*httptest.Server
	received chan streaming.Envelope
	secrets  chan string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	upgrader := ws.Upgrader{}
	ts := &testServer{
		received: make(chan streaming.Envelope, 100),
		secrets:  make(chan string, 10),
	}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.secrets <- r.URL.Query().Get("secret")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env streaming.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			ts.received <- env

			if env.Type == streaming.TypeStartSession || env.Type == streaming.TypeEndSession {
				ack, _ := json.Marshal(streaming.AckMessage{Type: "ack", For: env.Type})
				_ = conn.WriteMessage(ws.TextMessage, ack)
			}
		}
	}))
	t.Cleanup(ts.Close)

	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (ts *testServer) waitFor(t *testing.T, msgType string) streaming.Envelope {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case env := <-ts.received:
			if env.Type == msgType {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", msgType)
		}
	}
}

func newConnectedBackend(t *testing.T, ts *testServer) *Backend {
	t.Helper()
	b := New(Config{URL: ts.wsURL(), Secret: "test-secret"})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestMarshalEnvelope(t *testing.T) {
	data, err := marshalEnvelope(streaming.TypeFrame, &core.Frame{Tick: 7})
	require.NoError(t, err)

	var env streaming.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, streaming.TypeFrame, env.Type)

	var frame core.Frame
	require.NoError(t, json.Unmarshal(env.Payload, &frame))
	assert.Equal(t, uint64(7), frame.Tick)
}

func TestInit_SendsSecret(t *testing.T) {
	ts := newTestServer(t)
	newConnectedBackend(t, ts)

	select {
	case secret := <-ts.secrets:
		assert.Equal(t, "test-secret", secret)
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw the dial")
	}
}

func TestInit_BadURL(t *testing.T) {
	b := New(Config{URL: "ws://127.0.0.1:1/ws"})
	err := b.Init()
	require.Error(t, err)
}

func TestStartSession_WaitsForAck(t *testing.T) {
	ts := newTestServer(t)
	b := newConnectedBackend(t, ts)

	session := &core.Session{Name: "Crank Run", TickRate: 60}
	mech := &core.MechanismInfo{Name: "four-bar", NodeCount: 4, LinkCount: 4}

	require.NoError(t, b.StartSession(session, mech))

	env := ts.waitFor(t, streaming.TypeStartSession)
	var payload streaming.StartSessionPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "Crank Run", payload.Session.Name)
	assert.Equal(t, "four-bar", payload.Mechanism.Name)

	// Cached for reconnect replay
	b.conn.mu.Lock()
	cached := b.conn.cachedStartMsg
	b.conn.mu.Unlock()
	assert.NotNil(t, cached)
}

func TestEndSession_ClearsCachedStart(t *testing.T) {
	ts := newTestServer(t)
	b := newConnectedBackend(t, ts)

	require.NoError(t, b.StartSession(&core.Session{Name: "s"}, &core.MechanismInfo{}))
	require.NoError(t, b.EndSession())

	b.conn.mu.Lock()
	cached := b.conn.cachedStartMsg
	b.conn.mu.Unlock()
	assert.Nil(t, cached)
}

func TestRecordFrame_StreamsEnvelope(t *testing.T) {
	ts := newTestServer(t)
	b := newConnectedBackend(t, ts)

	frame := &core.Frame{
		Tick:  42,
		Poses: []core.NodePose{{NodeID: "n1", X: 180, Y: 360}},
	}
	require.NoError(t, b.RecordFrame(frame))

	env := ts.waitFor(t, streaming.TypeFrame)
	var got core.Frame
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, uint64(42), got.Tick)
	require.Len(t, got.Poses, 1)
	assert.Equal(t, "n1", got.Poses[0].NodeID)
}

func TestRecordTrace_StreamsEnvelope(t *testing.T) {
	ts := newTestServer(t)
	b := newConnectedBackend(t, ts)

	require.NoError(t, b.RecordTrace(&core.TraceSample{Tick: 5, NodeID: "n3", X: 1.5, Y: 2.5}))

	env := ts.waitFor(t, streaming.TypeTraceSample)
	var got core.TraceSample
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "n3", got.NodeID)
}

func TestRecordTopologyEvent_StreamsEnvelope(t *testing.T) {
	ts := newTestServer(t)
	b := newConnectedBackend(t, ts)

	require.NoError(t, b.RecordTopologyEvent(&core.TopologyEvent{Name: "add_link", Message: "l2"}))

	env := ts.waitFor(t, streaming.TypeTopologyEvent)
	var got core.TopologyEvent
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "add_link", got.Name)
}

func TestRecordMobilityEvent_StreamsEnvelope(t *testing.T) {
	ts := newTestServer(t)
	b := newConnectedBackend(t, ts)

	require.NoError(t, b.RecordMobilityEvent(&core.MobilityEvent{Mobility: 1, ActiveLinks: 4}))

	env := ts.waitFor(t, streaming.TypeMobilityEvent)
	var got core.MobilityEvent
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, 1, got.Mobility)
}

func TestRecordPerfSample_StreamsEnvelope(t *testing.T) {
	ts := newTestServer(t)
	b := newConnectedBackend(t, ts)

	require.NoError(t, b.RecordPerfSample(&core.PerfSample{Tick: 600, TickDurationMs: 1.5}))

	env := ts.waitFor(t, streaming.TypePerfSample)
	var got core.PerfSample
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, uint64(600), got.Tick)
}

func TestRecordTargetPath_StreamsEnvelope(t *testing.T) {
	ts := newTestServer(t)
	b := newConnectedBackend(t, ts)

	require.NoError(t, b.RecordTargetPath(&core.TargetPath{Points: [][2]float64{{0, 0}, {10, 0}}}))

	env := ts.waitFor(t, streaming.TypeTargetPath)
	var got core.TargetPath
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	require.Len(t, got.Points, 2)
}

func TestClose_Idempotent(t *testing.T) {
	ts := newTestServer(t)
	b := New(Config{URL: ts.wsURL()})
	require.NoError(t, b.Init())

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}
