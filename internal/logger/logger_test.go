package logger

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ReturnsNopWhenUninitialized(t *testing.T) {
	Global = nil
	l := Get()
	require.NotNil(t, l)
	l.Info().Msg("discarded")
}

func TestInit_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "outreach.log")

	require.NoError(t, Init("debug", path))
	t.Cleanup(func() { Global = nil })

	assert.FileExists(t, path)
	assert.Same(t, Global, Get())
}

func TestWithRun_TagsEntries(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter("info", &buf).WithComponent("dispatcher").WithRun("run-1")

	l.Info().Msg("batch finished")

	out := buf.String()
	assert.Contains(t, out, `"component":"dispatcher"`)
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"message":"batch finished"`)
}

func TestNewWriter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter("warn", &buf)

	l.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	l.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
