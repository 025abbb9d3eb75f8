package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/lyre/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", DebugLevel},
		{"DEBUG", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"invalid", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestNewLoggerOutputs(t *testing.T) {
	stdout, err := NewLogger(config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, os.Stdout, stdout.output)

	stderr, err := NewLogger(config.LoggingConfig{Level: "warn", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, stderr.output)
	assert.Equal(t, WarnLevel, stderr.level)

	_, err = NewLogger(config.LoggingConfig{Level: "info", Output: "syslog"})
	assert.Error(t, err)

	_, err = NewLogger(config.LoggingConfig{Level: "info", Output: "file"})
	assert.Error(t, err)
}

func TestNewLoggerFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "lyre.log")

	logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: "text", Output: "file", File: logFile})
	require.NoError(t, err)

	logger.Info("written to disk")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to disk")
}

func TestLoggerFieldsAreCopied(t *testing.T) {
	var buf bytes.Buffer

	base := New(&buf, DebugLevel, "json")
	child := base.Component("pipeline").WithFields(map[string]any{"entity": "invoice"})
	child.Info("stage applied")
	base.Info("no fields")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.Equal(t, "pipeline", first.Fields["component"])
	assert.Equal(t, "invoice", first.Fields["entity"])
	assert.Empty(t, second.Fields)
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&buf, WarnLevel, "text")
	logger.Debug("hidden")
	logger.Debugf("hidden %d", 1)
	logger.Info("hidden")
	logger.Warn("shown warn")
	logger.ErrorWithErr("shown error", assert.AnError)

	output := buf.String()
	assert.NotContains(t, output, "hidden")
	assert.Contains(t, output, "WARN shown warn")
	assert.Contains(t, output, "error="+assert.AnError.Error())
}

func TestTextFormatSortsFields(t *testing.T) {
	line := formatText(LogEntry{
		Timestamp: "ts",
		Level:     "INFO",
		Message:   "msg",
		Fields:    map[string]any{"b": 2, "a": 1},
	})

	assert.Equal(t, "[ts] INFO msg {a=1 b=2}", line)
}

func TestNilAndDiscardLoggers(t *testing.T) {
	var nilLogger *Logger

	assert.NotPanics(t, func() {
		nilLogger.Info("nothing")
		nilLogger.WithField("k", "v").Warn("nothing")
		Discard().Component("x").Error("nothing")
	})
	assert.False(t, Discard().Enabled(ErrorLevel))
}

func TestTrack(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&buf, DebugLevel, "json")

	err := Track(logger, "collect", func() error { return assert.AnError })
	assert.Equal(t, assert.AnError, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var start, end LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &start))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &end))

	assert.Equal(t, "collect", start.Fields["operation"])
	assert.Equal(t, "ERROR", end.Level)
	assert.Equal(t, assert.AnError.Error(), end.Error)
	assert.NotEmpty(t, end.Fields["duration"])
}

func TestGetLoggerFallsBackToStderr(t *testing.T) {
	prev := globalLogger
	t.Cleanup(func() { globalLogger = prev })

	globalLogger = nil

	logger := GetLogger()
	require.NotNil(t, logger)
	assert.Same(t, logger, GetLogger())
	assert.True(t, logger.Enabled(InfoLevel))
	assert.False(t, logger.Enabled(DebugLevel))
}
