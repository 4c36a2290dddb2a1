package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLevel(t *testing.T) {
	testCases := []struct {
		name string
		want slog.Level
	}{
		{name: "DEBUG", want: slog.LevelDebug},
		{name: "warn", want: slog.LevelWarn},
		{name: " ERROR ", want: slog.LevelError},
		{name: "", want: slog.LevelInfo},
		{name: "verbose", want: slog.LevelInfo},
	}

	for _, tc := range testCases {
		SetLevel(tc.name)
		assert.Equal(t, tc.want, level.Level(), "level %q", tc.name)
	}
}

func TestLoggerWithDoesNotShareAttrs(t *testing.T) {
	base := NewLogger("test").With("a", 1)
	x := base.With("b", 2)
	y := base.With("c", 3)

	assert.Equal(t, []interface{}{"a", 1, "b", 2}, x.attrs)
	assert.Equal(t, []interface{}{"a", 1, "c", 3}, y.attrs)
}
