package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlogLogger_JSON(t *testing.T) {
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	l := NewSlog(Options{Level: InfoLevel, Output: &buf})

	l.Debug("hidden")
	assert.Zero(t, buf.Len(), "debug must be filtered at info level")

	l.With("component", "fxlink").Info("port opened", "port", "COM1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "port opened", rec["msg"])
	assert.Equal(t, "fxlink", rec["component"])
	assert.Equal(t, "COM1", rec["port"])
	assert.Contains(t, rec, "ts")
}

func TestSlogLogger_SetLevel(t *testing.T) {
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	l := NewSlog(Options{Level: ErrorLevel, Output: &buf})
	assert.Equal(t, ErrorLevel, l.Level())

	child := l.With("k", "v")
	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, child.Level(), "child shares the parent's level")

	child.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestMockLogger_AllowAll(t *testing.T) {
	m := NewMockLogger().AllowAll()

	child := m.With("component", "test")
	child.Warn("checksum mismatch", "wire", 0x32)

	m.AssertCalled(t, "Warn", "checksum mismatch", []any{"wire", 0x32})
}
