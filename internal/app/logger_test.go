package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	ctx := context.Background()

	dev := NewLogger(&Config{AppEnv: "development"})
	require.True(t, dev.Enabled(ctx, slog.LevelDebug))

	prod := NewLogger(&Config{AppEnv: "production", LogFormat: "json"})
	require.False(t, prod.Enabled(ctx, slog.LevelDebug))
	require.True(t, prod.Enabled(ctx, slog.LevelInfo))
}
