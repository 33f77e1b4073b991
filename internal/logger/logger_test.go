package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	lvl, ok := ParseLevel("DEBUG")
	require.True(t, ok)
	require.Equal(t, slog.LevelDebug, lvl)

	lvl, ok = ParseLevel("loud")
	require.False(t, ok)
	require.Equal(t, slog.LevelInfo, lvl)
}

func TestContextLoggerCarriesAttributes(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := ToContext(context.Background(), New(&buf, slog.LevelInfo, "json"))
	ctx = With(ctx, "series_id", "rent")

	FromContext(ctx).Info("realized")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "realized", rec["msg"])
	require.Equal(t, "rent", rec["series_id"])
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	t.Parallel()
	require.NotNil(t, FromContext(context.Background()))
}
