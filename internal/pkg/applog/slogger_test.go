package applog

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"trace":   LevelTrace,
		" DEBUG ": slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		require.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestDefaultLogger_LevelsAndSource(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "debug")

	l.Trace("hidden")
	require.Empty(t, buf.String())

	l.Warn("gap detected", "topic", "rawtx")
	out := buf.String()
	require.Contains(t, out, "level=WARN")
	require.Contains(t, out, `msg="gap detected"`)
	require.Contains(t, out, "topic=rawtx")
	require.Contains(t, out, "slogger_test.go")
}

func TestDefaultLogger_FatalExits(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "info")
	code := -1
	l.exit = func(c int) { code = c }
	l.Fatal("boom")
	require.Equal(t, 1, code)
	require.Contains(t, buf.String(), "level=ERROR")
}
