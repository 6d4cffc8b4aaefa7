package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"unknown", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("creates console logger", func(t *testing.T) {
		l := New(Config{Level: "debug", Format: "console", Output: "stdout"})
		require.NotNil(t, l)
		assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("creates json logger", func(t *testing.T) {
		l := New(Config{Level: "warn", Format: "json", Output: "stderr"})
		require.NotNil(t, l)
		assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("writes to file output", func(t *testing.T) {
		path := t.TempDir() + "/app.log"
		l := New(Config{Level: "info", Format: "json", Output: path})
		l.Info("hello")
		require.NoError(t, l.Sync())

		assert.FileExists(t, path)
	})
}

func TestNewForEnvironment(t *testing.T) {
	assert.NotNil(t, NewForEnvironment("development"))
	assert.NotNil(t, NewForEnvironment("production"))
}
