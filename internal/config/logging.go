package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LevelTrace sits below [slog.LevelDebug]. It carries every state
// publish and every probe command line, so it is only useful when
// diagnosing a single device.
const LevelTrace = slog.Level(-8)

// logLevels maps the accepted log_level values; matching ignores case
// and surrounding whitespace.
var logLevels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"trace":   LevelTrace,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLogLevel converts a log_level value to an [slog.Level]. An
// empty value means info.
func ParseLogLevel(s string) (slog.Level, error) {
	if level, ok := logLevels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return level, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
}

// ReplaceLogLevelNames renders [LevelTrace] as "TRACE" instead of
// slog's "DEBUG-4". Use it as [slog.HandlerOptions.ReplaceAttr].
func ReplaceLogLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// NewLogger returns a logger writing to w. format is "json" or text
// (anything else).
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: ReplaceLogLevelNames}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
