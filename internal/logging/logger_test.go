package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info")
	require.NotNil(t, log)

	log.Info().Msg("plugin installed")
	assert.Contains(t, buf.String(), "plugin installed")
}

func TestNewDefaultWriter(t *testing.T) {
	log := New(nil, "info")
	require.NotNil(t, log)
}

func TestNewWithStyle_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithStyle(&buf, "debug", "json")

	log.Debug().Str("channel", "plugin").Msg("emit")
	assert.Contains(t, buf.String(), `"channel":"plugin"`)
}

func TestSub(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug")
	sub := log.Sub("eventbus")
	require.NotNil(t, sub)

	sub.Info().Msg("bus started")
	output := buf.String()
	assert.Contains(t, output, "bus started")
	assert.Contains(t, output, "eventbus")
}

func TestSubChain(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug")
	sub := log.Sub("plugins").Sub("calendar")

	sub.Info().Msg("deep message")
	output := buf.String()
	assert.Contains(t, output, "deep message")
	assert.Contains(t, output, "calendar")
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info").With("plugin", "calendar")

	log.Info().Msg("tagged")
	assert.Contains(t, buf.String(), "calendar")
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error().Msg("discarded")
	assert.NotNil(t, log.Sub("x"))
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Debug().Msg("debug msg")
	log.Info().Msg("info msg")
	assert.Empty(t, buf.String(), "debug and info should be filtered at warn level")

	log.Warn().Msg("warn msg")
	assert.Contains(t, buf.String(), "warn msg")

	buf.Reset()
	log.Error().Msg("error msg")
	assert.Contains(t, buf.String(), "error msg")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"silent", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestValidLevel(t *testing.T) {
	assert.True(t, ValidLevel("silent"))
	assert.True(t, ValidLevel("debug"))
	assert.False(t, ValidLevel("INFO"))
	assert.False(t, ValidLevel(""))
}

func TestSilentLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "silent")

	log.Debug().Msg("should not appear")
	log.Info().Msg("should not appear")
	log.Warn().Msg("should not appear")
	log.Error().Msg("should not appear")

	assert.Empty(t, buf.String())
}

func TestLevels(t *testing.T) {
	lv := Levels()
	assert.Contains(t, lv, "trace")
	assert.Contains(t, lv, "silent")
	lv[0] = "mutated"
	assert.NotContains(t, Levels(), "mutated")
}
