package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel_RecognizesKnownNamesCaseInsensitively(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestParseLevel_TrimsWhitespace(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("  debug  "))
}

func TestNew_HonorsExplicitLevel(t *testing.T) {
	logger := New("r2bctl", "v1.2.3", "debug")
	assert.True(t, logger.Enabled(nil, slog.LevelDebug))
	assert.False(t, New("r2bctl", "v1.2.3", "warn").Enabled(nil, slog.LevelInfo))
}

func TestSetDefaultWithLevel_InstallsSlogDefault(t *testing.T) {
	SetDefaultWithLevel("r2bctl-test", "dev", "error")
	assert.False(t, slog.Default().Enabled(nil, slog.LevelWarn))

	SetDefaultWithLevel("r2bctl-test", "dev", "")
	assert.True(t, slog.Default().Enabled(nil, slog.LevelInfo))
}
