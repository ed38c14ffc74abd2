package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStampsServiceAndProcess(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Service: "giveaway-tickets", Out: &buf})

	l.Debug().Msg("hidden")
	l.Info().Str("giveaway_id", "g1").Msg("joined")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line), buf.String())
	assert.Equal(t, "giveaway-tickets", line["service"])
	assert.EqualValues(t, os.Getpid(), line["pid"])
	assert.Equal(t, "g1", line["giveaway_id"])
	assert.Equal(t, "info", line["level"])
}

func TestNewDebugWritesConsoleLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Service: "giveaway-tickets", Debug: true, Out: &buf})

	l.Debug().Msg("captcha issued")

	out := buf.String()
	assert.Contains(t, out, "captcha issued")
	assert.Contains(t, out, "service:")
	assert.Contains(t, out, "giveaway-tickets")
}
