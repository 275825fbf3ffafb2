package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"warning", WARN, false},
		{"error", ERROR, false},
		{"none", SILENT, false},
		{"loud", INFO, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf, false)

	l.Info("Camera", "hidden %d", 1)
	l.Warn("Camera", "shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] [Camera] shown 2")
}

func TestLoggerSilentDropsEverything(t *testing.T) {
	var buf bytes.Buffer
	l := New(SILENT, &buf, false)
	l.Error("Camera", "boom")
	assert.Empty(t, buf.String())
}

func TestLoggerColor(t *testing.T) {
	var buf bytes.Buffer
	l := New(DEBUG, &buf, true)
	l.Debug("", "colored")
	assert.Contains(t, buf.String(), levelColors[DEBUG]+"[DEBUG]"+resetColor)
}
