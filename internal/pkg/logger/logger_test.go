package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_Production(t *testing.T) {
	var buf bytes.Buffer
	l, err := Initialize(Options{Env: "production"}, &buf)
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("reference loaded", slog.Int("postcodes", 3))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "reference loaded", entry["msg"])
	assert.Equal(t, float64(3), entry["postcodes"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestInitialize_Overrides(t *testing.T) {
	var buf bytes.Buffer
	l, err := Initialize(Options{Env: "development", Level: "WARN", Format: "json"}, &buf)
	require.NoError(t, err)

	l.Info("skipped")
	l.Warn("kept")
	assert.NotContains(t, buf.String(), "skipped")
	assert.Contains(t, buf.String(), `"msg":"kept"`)
}

func TestInitialize_Invalid(t *testing.T) {
	_, err := Initialize(Options{Level: "verbose"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = Initialize(Options{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"Info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"ERROR": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
