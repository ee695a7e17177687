package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_SameInstance(t *testing.T) {
	a := Logger("subsys-a")
	b := Logger("subsys-a")
	require.Same(t, a, b)

	c := Logger("subsys-b")
	assert.NotSame(t, a, c)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.input), tt.input)
	}
}

func TestSetLevel(t *testing.T) {
	l := Logger("subsys-dynamic")
	require.True(t, l.Enabled(context.Background(), slog.LevelInfo))

	SetLevel("subsys-dynamic", slog.LevelError)
	assert.False(t, l.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, l.Enabled(context.Background(), slog.LevelError))
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
	// 不会 panic，也不产生输出
	l.Info("ignored")
}
