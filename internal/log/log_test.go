package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakeDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := Make(&buf)

	require.Equal(t, LevelInfo, logger.level)
	require.False(t, logger.caller)
	require.Equal(t, FormatText, logger.format)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := Make(&buf, WithLevel(LevelError))

	logger.Info("info message")
	require.Zero(t, buf.Len(), "info message logged at error level")

	logger.Error("error message")
	require.Contains(t, buf.String(), "error message")
}

func TestTraceLevelName(t *testing.T) {
	var buf bytes.Buffer
	logger := Make(&buf, WithLevel(LevelTrace), WithFormat(FormatJSON), WithoutTime())

	logger.Trace("tracing", slog.String("src", "a+b"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "TRACE", rec["level"])
	require.Equal(t, "a+b", rec["src"])
	require.NotContains(t, rec, "time")
}

func TestEnabled(t *testing.T) {
	var zero Logger
	require.False(t, zero.Enabled(LevelError))
	zero.Error("discarded") // must not panic

	logger := Make(nil, WithLevel(LevelDebug))
	require.True(t, logger.Enabled(LevelDebug))
	require.False(t, logger.Enabled(LevelTrace))
}

func TestWrapKeepsConfig(t *testing.T) {
	var buf bytes.Buffer
	logger := Make(&buf, WithFormat(FormatJSON)).Wrap(WithLevel(LevelDebug))

	logger.Debug("wrapped")
	require.True(t, strings.HasPrefix(buf.String(), "{"), "expected JSON output, got %q", buf.String())
}

func TestWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := Make(&buf, WithoutTime()).With(slog.String("component", "cache"))

	logger.Info("hit")
	require.Contains(t, buf.String(), "component=cache")
}

func TestWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "condexpr.log")

	var buf bytes.Buffer
	logger := Make(&buf, WithFile(path, 1))
	t.Cleanup(func() { require.NoError(t, logger.Close()) })

	logger.Warn("to both")
	require.Contains(t, buf.String(), "to both")
	require.FileExists(t, path)
}

func TestParse(t *testing.T) {
	cases := []struct {
		in    string
		level Level
	}{
		{"trace", LevelTrace},
		{"TRACE", LevelTrace},
		{"debug", LevelDebug},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"bogus", DefaultLevel},
	}
	for _, c := range cases {
		require.Equal(t, c.level, ParseLevel(c.in), c.in)
	}
	require.Equal(t, FormatJSON, ParseFormat(" JSON "))
	require.Equal(t, DefaultFormat, ParseFormat("yaml"))
}
