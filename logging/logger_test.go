package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(level LogLevel) (*ChatLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: level, Format: "json", Output: &buf})
	return logger, &buf
}

// decodeLines parses each emitted JSON log record.
func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		records = append(records, rec)
	}
	return records
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLevel("anything else"))
}

func TestChatLogger_LevelFiltering(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("shown too")

	records := decodeLines(t, buf)
	require.Len(t, records, 2)
	assert.Equal(t, "shown", records[0]["msg"])
	assert.Equal(t, "shown too", records[1]["msg"])
}

func TestChatLogger_PrintfFormatting(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelInfo)

	logger.Info("session created session_id=%s", "abc-123")

	records := decodeLines(t, buf)
	require.Len(t, records, 1)
	assert.Equal(t, "session created session_id=abc-123", records[0]["msg"])
}

func TestChatLogger_WithHelpers(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelInfo)

	scoped := logger.WithComponent("store").WithSession("sess-1").WithContext("provider", "openai")
	scoped.Info("hello")

	// Cloning must not leak attributes back into the parent.
	logger.Info("plain")

	records := decodeLines(t, buf)
	require.Len(t, records, 2)
	assert.Equal(t, "store", records[0]["component"])
	assert.Equal(t, "sess-1", records[0]["session_id"])
	assert.Equal(t, "openai", records[0]["provider"])
	assert.NotContains(t, records[1], "component")
	assert.NotContains(t, records[1], "session_id")
}

func TestChatLogger_LogTurn(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelInfo)

	logger.LogTurn("Technical Expert", 120*time.Millisecond, true, nil)
	logger.LogTurn("Triage Assistant", 5*time.Millisecond, false, errors.New("backend down"))

	records := decodeLines(t, buf)
	require.Len(t, records, 2)

	assert.Equal(t, "Turn completed", records[0]["msg"])
	assert.Equal(t, "Technical Expert", records[0]["handler"])
	assert.Equal(t, true, records[0]["success"])

	assert.Equal(t, "Turn failed", records[1]["msg"])
	assert.Equal(t, "ERROR", records[1]["level"])
	assert.Equal(t, "backend down", records[1]["error"])
}

func TestChatLogger_LogModelCall(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelInfo)

	logger.LogModelCall("gpt-4o-mini", 80*time.Millisecond, true, nil)

	records := decodeLines(t, buf)
	require.Len(t, records, 1)
	assert.Equal(t, "Model call completed", records[0]["msg"])
	assert.Equal(t, "gpt-4o-mini", records[0]["model"])
}

func TestChatLogger_LogSweep(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelInfo)

	logger.WithComponent("store").LogSweep(3, 7)

	records := decodeLines(t, buf)
	require.Len(t, records, 1)
	assert.Equal(t, "Expired sessions swept", records[0]["msg"])
	assert.Equal(t, float64(3), records[0]["removed"])
	assert.Equal(t, float64(7), records[0]["remaining"])
	assert.Equal(t, "store", records[0]["component"])
}

func TestSlogAdapter_PrintfFormatting(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil)))

	logger.Info("append to unknown session dropped session_id=%s", "missing")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "append to unknown session dropped session_id=missing", rec["msg"])
	assert.NotContains(t, rec, "!BADKEY")
}
