package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hamster-duel/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" warn ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.name))
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := Component(New(config.LogConfig{Level: "warn", Format: "json"}, &buf), "relay")

	l.Info().Msg("hidden")
	l.Warn().Str("room", "ABC123").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["message"])
	assert.Equal(t, "relay", line["component"])
	assert.Equal(t, "ABC123", line["room"])
	assert.Contains(t, line, "time")
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	l := New(config.LogConfig{Level: "info", Format: "console"}, &buf)

	l.Info().Str("role", "host").Msg("peer connected")

	out := buf.String()
	assert.Contains(t, out, "peer connected")
	assert.Contains(t, out, "role=host")
	assert.NotContains(t, out, "\x1b[", "no colors for non-terminals")
}
