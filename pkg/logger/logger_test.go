package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("JSON形式でservice属性が付与されること", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := New(&buf, "gateway", FormatJSON, slog.LevelInfo)
		log.Info("started", "port", "8080")

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "started", rec["msg"])
		assert.Equal(t, "gateway", rec["service"])
		assert.Equal(t, "8080", rec["port"])
	})

	t.Run("レベル未満のログは出力されないこと", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := New(&buf, "identity", FormatJSON, slog.LevelWarn)
		log.Info("ignored")
		assert.Empty(t, buf.String())
	})

	t.Run("pretty形式で1行に属性が出力されること", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := New(&buf, "menu", FormatPretty, slog.LevelDebug)
		log.WithGroup("req").Debug("handled", "status", 200)

		out := buf.String()
		assert.Contains(t, out, "handled")
		assert.Contains(t, out, "service"+reset+"=menu")
		assert.Contains(t, out, "req.status"+reset+"=200")
		assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
	})
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "WARN", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "", want: slog.LevelInfo},
		{in: "verbose", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FormatJSON, ParseFormat(" JSON "))
	assert.Equal(t, FormatPretty, ParseFormat("text"))
	assert.Equal(t, FormatPretty, ParseFormat(""))
}

func TestSetup(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "warn")

	log := Setup("menu")

	assert.Same(t, log, slog.Default())
	assert.False(t, log.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, log.Enabled(context.Background(), slog.LevelWarn))
}
