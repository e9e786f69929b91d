package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    slog.Level
		wantErr bool
	}{
		{name: "default info", raw: "", want: slog.LevelInfo},
		{name: "debug", raw: "debug", want: slog.LevelDebug},
		{name: "info", raw: "info", want: slog.LevelInfo},
		{name: "warn", raw: "warn", want: slog.LevelWarn},
		{name: "warning alias", raw: "warning", want: slog.LevelWarn},
		{name: "error", raw: "error", want: slog.LevelError},
		{name: "numeric", raw: "-4", want: slog.LevelDebug},
		{name: "invalid", raw: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLogLevel(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectedLogLevel(t *testing.T) {
	raw, source := selectedLogLevel("debug", "warn")
	assert.Equal(t, "debug", raw)
	assert.Equal(t, "flag", source)

	raw, source = selectedLogLevel("", "error")
	assert.Equal(t, "error", raw)
	assert.Equal(t, "config", source)

	raw, source = selectedLogLevel("  ", "")
	assert.Equal(t, "", raw)
	assert.Equal(t, "default", source)
}

func TestConfigureLoggerForCLI(t *testing.T) {
	defaultLogger := slog.Default()
	t.Cleanup(func() { slog.SetDefault(defaultLogger) })
	ctx := context.Background()

	require.NoError(t, configureLoggerForCLI("debug", "verbose"))
	assert.True(t, slog.Default().Enabled(ctx, slog.LevelDebug))

	require.Error(t, configureLoggerForCLI("verbose", "info"))

	require.NoError(t, configureLoggerForCLI("", "verbose"))
	assert.False(t, slog.Default().Enabled(ctx, slog.LevelDebug))
	assert.True(t, slog.Default().Enabled(ctx, slog.LevelInfo))
}
