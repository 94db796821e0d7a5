package applog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// LevelTrace sits below slog.LevelDebug and carries per-message diagnostics.
const LevelTrace = slog.Level(-8)

// AppLogger is the structured logger shared by every adapter. Args are
// slog-style key/value pairs.
type AppLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
	Trace(msg string, args ...any)
	Fatal(msg string, args ...any)
}

// DefaultLogger wraps slog.Logger and implements AppLogger.
type DefaultLogger struct {
	logger *slog.Logger
	exit   func(int)
}

// NewAppDefaultLogger creates a DefaultLogger writing text records to stdout
// at the level configured under "log.level".
func NewAppDefaultLogger() *DefaultLogger {
	return NewLogger(os.Stdout, viper.GetString("log.level"))
}

// NewLogger creates a DefaultLogger writing to w at the named level.
func NewLogger(w io.Writer, level string) *DefaultLogger {
	return &DefaultLogger{
		logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLogLevel(level), AddSource: false})),
		exit:   os.Exit,
	}
}

func (l *DefaultLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *DefaultLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *DefaultLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }
func (l *DefaultLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *DefaultLogger) Trace(msg string, args ...any) { l.log(LevelTrace, msg, args) }

func (l *DefaultLogger) Fatal(msg string, args ...any) {
	l.log(slog.LevelError, msg, args)
	l.exit(1)
}

func (l *DefaultLogger) log(level slog.Level, msg string, args []any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	// skip log + the exported wrapper
	if src := callerSource(2); src != "" {
		args = append([]any{"source", src}, args...)
	}
	l.logger.Log(ctx, level, msg, args...)
}

func callerSource(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func parseLogLevel(s string) slog.Level {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Nop discards everything. Fatal does not exit.
type Nop struct{}

func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}
func (Nop) Debug(string, ...any) {}
func (Nop) Trace(string, ...any) {}
func (Nop) Fatal(string, ...any) {}
