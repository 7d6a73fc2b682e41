package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("ERROR"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("loud"))
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatConsole, ParseFormat("console"))
	assert.Equal(t, FormatConsole, ParseFormat("yaml"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "INFO", FormatJSON)

	l.Named(ComponentStream).Info("connected", zap.String("url", "http://x/events"))
	l.Debug("hidden")
	require.NoError(t, l.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "Stream", entry["component"])
	assert.Equal(t, "connected", entry["msg"])
	assert.Equal(t, "http://x/events", entry["url"])
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "DEBUG", FormatConsole)

	l.Debug("tick")
	require.NoError(t, l.Sync())
	assert.Contains(t, buf.String(), " | ")
	assert.Contains(t, buf.String(), "tick")
}

func TestSetAndFor(t *testing.T) {
	var buf bytes.Buffer
	Set(New(&buf, "INFO", FormatJSON))
	t.Cleanup(func() { Set(zap.NewNop()) })

	For(ComponentEngine).Infow("applied", "seq", 3)
	require.NoError(t, Sync())

	assert.Contains(t, buf.String(), `"component":"Engine"`)
	assert.Contains(t, buf.String(), `"seq":3`)
}
