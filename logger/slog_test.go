package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_JSONOutput(t *testing.T) {
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	l := NewSlogWithOptions(SlogOptions{Output: &buf, Level: InfoLevel})

	l.Debug("hidden", "address", 3)
	assert.Zero(t, buf.Len())

	l.Info("gsioc: port opened", "port", "/dev/ttyUSB0")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "gsioc: port opened", rec["msg"])
	assert.Equal(t, "/dev/ttyUSB0", rec["port"])
	assert.Contains(t, rec, "ts")
}

func TestSlogLogger_WithSharesLevel(t *testing.T) {
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	parent := NewSlogWithOptions(SlogOptions{Output: &buf, Level: WarnLevel})
	child := parent.With("address", 12)

	child.Info("dropped")
	assert.Zero(t, buf.Len())

	parent.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, child.Level())

	child.Debug("kept")
	assert.Contains(t, buf.String(), `"address":12`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"", InfoLevel},
		{"warning", WarnLevel},
		{" error ", ErrorLevel},
		{"fatal", FatalLevel},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("verbose")
	require.Error(t, err)
}

func TestSlogLogger_ConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogWithOptions(SlogOptions{Output: &buf, Level: DebugLevel, Console: true})

	l.Debug("gsioc: device connected", "address", 12)

	out := buf.String()
	assert.Contains(t, out, "gsioc: device connected")
	assert.Contains(t, out, "address")
	assert.Contains(t, out, "12")
	assert.False(t, json.Valid(buf.Bytes()))
}
