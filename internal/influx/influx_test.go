package influx

import (
	"context"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkage-studio/engine/pkg/core"
)

func TestNewManager(t *testing.T) {
	m := NewManager(zerolog.Nop(), "/tmp/backup.gz")

	require.NotNil(t, m)
	assert.False(t, m.IsValid)
	assert.Equal(t, DefaultBucketNames, m.BucketNames)
	assert.Equal(t, "/tmp/backup.gz", m.BackupPath)
}

func TestWritePoint_NoClientNoBackup(t *testing.T) {
	m := NewManager(zerolog.Nop(), "")

	_, point := PerfSamplePoint("s", &core.PerfSample{})
	err := m.WritePoint(context.Background(), BucketEnginePerformance, point)
	require.Error(t, err)
}

func TestPerfSamplePoint(t *testing.T) {
	sample := &core.PerfSample{
		Tick:           600,
		Time:           time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC),
		ResidualError:  0.0004,
		TickDurationMs: 1.8,
		FrameQueueLen:  12,
		TraceQueueLen:  3,
	}

	bucket, point := PerfSamplePoint("Crank Run", sample)
	assert.Equal(t, BucketEnginePerformance, bucket)

	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	assert.True(t, strings.HasPrefix(line, "engine_tick,"))
	assert.Contains(t, line, `session=Crank\ Run`)
	assert.Contains(t, line, "tick=600i")
	assert.Contains(t, line, "residual_error=0.0004")
	assert.Contains(t, line, "frame_queue_len=12i")
}

func TestMobilityPoint(t *testing.T) {
	event := &core.MobilityEvent{
		Tick:           10,
		Mobility:       1,
		ActiveLinks:    4,
		Classification: "Mechanism (single degree of freedom)",
	}

	bucket, point := MobilityPoint("s", event)
	assert.Equal(t, BucketSessionData, bucket)

	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	assert.True(t, strings.HasPrefix(line, "mobility,"))
	assert.Contains(t, line, "mobility=1i")
	assert.Contains(t, line, "active_links=4i")
}

func TestTopologyPoint(t *testing.T) {
	event := &core.TopologyEvent{
		Tick:    3,
		Name:    "delete_node",
		Message: "n4",
	}

	bucket, point := TopologyPoint("s", event)
	assert.Equal(t, BucketSessionData, bucket)

	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	assert.True(t, strings.HasPrefix(line, "topology,"))
	assert.Contains(t, line, "name=delete_node")
	assert.Contains(t, line, `message="n4"`)
}
