package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: LevelInfo, Format: "json"}).With(Component("http"))

	l.Debug("hidden")
	l.Info("evaluated", StudentID("s1"), Major("物联网工程"), Class(2), Err(errors.New("boom")))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "evaluated", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "http", entry["component"])
	assert.Equal(t, "s1", entry["student_id"])
	assert.Equal(t, "物联网工程", entry["major"])
	assert.Equal(t, float64(2), entry["predicted_class"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_WithDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Output: &buf, Format: "json"})
	_ = base.WithRequestID("r1")

	base.Info("plain")
	assert.NotContains(t, buf.String(), RequestIDKey)
}

func TestContextRoundTrip(t *testing.T) {
	l := Default().With(RunID("run"))
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
