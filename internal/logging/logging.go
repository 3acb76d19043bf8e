// Package logging wraps log/slog with rhel2bootc defaults and conventions
// for consistent structured logging across the inspection pipeline.
//
// Logs are written to stderr as JSON. The LOG_LEVEL environment variable
// (debug, info, warn/warning, error) controls verbosity; debug level also
// attaches source file/line. Every component should call SetDefault once
// near the start of main so subsequent slog.Info/Debug/Warn/Error calls
// share one format.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

const envLogLevel = "LOG_LEVEL"

// ParseLevel converts a case-insensitive level name to a slog.Level.
// Unrecognized names fall back to slog.LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a structured logger tagged with component/version, honoring an
// explicit level rather than the LOG_LEVEL environment variable.
func New(component, version, level string) *slog.Logger {
	lvl := ParseLevel(level)
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	})
	return slog.New(handler).With(
		slog.String("component", component),
		slog.String("version", version),
	)
}

// SetDefault installs a structured logger as the slog default, taking its
// level from the LOG_LEVEL environment variable (defaulting to info).
func SetDefault(component, version string) {
	SetDefaultWithLevel(component, version, os.Getenv(envLogLevel))
}

// SetDefaultWithLevel installs a structured logger as the slog default with
// an explicit level, overriding LOG_LEVEL. An empty level string defaults to info.
func SetDefaultWithLevel(component, version, level string) {
	slog.SetDefault(New(component, version, level))
}
