package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetup_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := Setup(Options{Level: "warn", Format: "json", Output: &buf})
	require.NoError(t, err)
	defer cleanup()

	logger.Info("dropped")
	logger.Warn("kept", "table", "person")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "person", entry["table"])
}

func TestSetup_BadFormat(t *testing.T) {
	_, _, err := Setup(Options{Format: "xml"})
	assert.Error(t, err)
}

type recordingHandler struct {
	level slog.Level
	got   []string
}

func (h *recordingHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.got = append(h.got, r.Message)
	return nil
}
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestMultiHandler_RespectsEachLevel(t *testing.T) {
	debug := &recordingHandler{level: slog.LevelDebug}
	errs := &recordingHandler{level: slog.LevelError}
	logger := slog.New(&multiHandler{handlers: []slog.Handler{debug, errs}})

	logger.Debug("one")
	logger.Error("two")

	assert.Equal(t, []string{"one", "two"}, debug.got)
	assert.Equal(t, []string{"two"}, errs.got)
}
