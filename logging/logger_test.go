package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = (*ResearchLogger)(nil)
	_ Logger = (*ZapAdapter)(nil)
	_ Logger = NoOpLogger{}

	_ WorkerCallLogger = (*ResearchLogger)(nil)
	_ WorkerCallLogger = (*ZapAdapter)(nil)
	_ DropLogger       = (*ResearchLogger)(nil)
	_ DropLogger       = (*ZapAdapter)(nil)
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestResearchLogger_KeyValueArgs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LoggerConfig{Level: LogLevelInfo, Output: &buf}).WithComponent("planner").With("session", "acme/s1")

	l.Info("plan proposed", "missions", 3)

	m := decode(t, &buf)
	assert.Equal(t, "plan proposed", m["msg"])
	assert.Equal(t, "planner", m["component"])
	assert.Equal(t, "acme/s1", m["session"])
	assert.Equal(t, float64(3), m["missions"])
}

func TestResearchLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LoggerConfig{Level: LogLevelWarn, Output: &buf})

	l.Info("hidden")
	l.LogWorkerCall("drop-1", "m1", 1, 10, time.Second, nil)
	assert.Zero(t, buf.Len())

	l.LogWorkerCall("drop-1", "m1", 2, 10, time.Second, errors.New("boom"))
	m := decode(t, &buf)
	assert.Equal(t, "worker call failed", m["msg"])
	assert.Equal(t, "boom", m["error"])
	assert.Equal(t, false, m["success"])
	assert.Equal(t, float64(2), m["attempt"])
}

func TestResearchLogger_LogDrop(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LoggerConfig{Level: LogLevelInfo, Output: &buf})

	l.LogDrop("acme/s1", "drop-2", "partial", 3, 1, 900, time.Second)

	m := decode(t, &buf)
	assert.Equal(t, "WARN", m["level"])
	assert.Equal(t, "drop-2", m["drop"])
	assert.Equal(t, float64(1), m["failed"])
}

func TestResearchLogger_WithDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(LoggerConfig{Level: LogLevelInfo, Output: &buf})
	_ = base.With("k", "v")
	_ = base.WithComponent("engine")

	base.Info("x")
	m := decode(t, &buf)
	assert.NotContains(t, m, "k")
	assert.NotContains(t, m, "component")
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	l := Component(NewLogger(LoggerConfig{Level: LogLevelInfo, Output: &buf}), "dispatcher")

	l.Info("x")
	assert.Equal(t, "dispatcher", decode(t, &buf)["component"])

	assert.Equal(t, NoOpLogger{}, Component(nil, "engine"))
	assert.Equal(t, NoOpLogger{}, Component(NoOpLogger{}, "engine"))
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{"debug": LogLevelDebug, "": LogLevelInfo, "WARNING": LogLevelWarn, "error": LogLevelError} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestZapAdapter(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapAdapter(zap.New(core))

	l.Warn("retrying", "mission_id", "m1")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "retrying", entry.Message)
	assert.Equal(t, "m1", entry.ContextMap()["mission_id"])
}

func TestZapAdapter_DomainRecords(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapAdapter(zap.New(core)).With("component", "dispatcher")

	l.LogWorkerCall("drop-1", "m1", 1, 50, time.Second, nil)
	l.LogDrop("acme/s1", "drop-1", "success", 1, 0, 50, time.Second)

	require.Equal(t, 2, logs.Len())
	call := logs.All()[0]
	assert.Equal(t, zap.DebugLevel, call.Level)
	assert.Equal(t, "dispatcher", call.ContextMap()["component"])
	assert.Equal(t, "m1", call.ContextMap()["mission"])
	assert.Equal(t, "drop completed", logs.All()[1].Message)
	assert.Equal(t, zap.InfoLevel, logs.All()[1].Level)
}

func TestNewRotatingZapLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gtm.log")
	l := NewRotatingZapLogger(RotationConfig{Filename: path}, LogLevelInfo)

	l.Info("hello", "n", 1)
	require.NoError(t, l.Sync())
	assert.FileExists(t, path)
}
