package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetWriterForAll(&buf)
	SetColorMode(ColorNever)
	t.Cleanup(func() {
		SetWriterForAll(os.Stderr)
		SetVerbose(false)
		SetColorMode(ColorAuto)
	})
	return &buf
}

func TestDebugNeedsVerbose(t *testing.T) {
	buf := capture(t)

	Debug("hidden %d", 1)
	assert.Empty(t, buf.String())

	SetVerbose(true)
	assert.True(t, IsVerbose())
	Debug("shown %d", 2)
	assert.Contains(t, buf.String(), "DEBUG shown 2")
}

func TestLevelsAndPlainFormat(t *testing.T) {
	buf := capture(t)

	Info("info")
	Warn("warn %s", "x")
	Error("error")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "INFO  info")
	assert.Contains(t, lines[1], "WARN  warn x")
	assert.Contains(t, lines[2], "ERROR error")
	assert.NotContains(t, buf.String(), "\033[")
}

func TestColorAlways(t *testing.T) {
	buf := capture(t)
	SetColorMode(ColorAlways)

	Warn("coloured")
	assert.Contains(t, buf.String(), ColorYellow)
	assert.Contains(t, buf.String(), ColorReset)
}

func TestAddWriterForAll(t *testing.T) {
	buf := capture(t)
	var extra bytes.Buffer
	AddWriterForAll(&extra)

	Info("both")
	assert.Contains(t, buf.String(), "both")
	assert.Contains(t, extra.String(), "both")
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", DEBUG.String())
	assert.Equal(t, "ERROR", ERROR.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}
