package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "custom json config", config: &Config{Level: "debug", Format: "json", Output: io.Discard}},
		{name: "console config", config: &Config{Level: "info", Format: "console", Output: io.Discard}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, New(tt.config))
		})
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "info", Format: "json", Output: buf})

	logger.Info("scan started")

	entry := decode(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "scan started", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_WithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "info", Format: "json", Output: buf})

	child := logger.With().
		Str("engine", "postgres").
		Int("workers", 3).
		Float("priority", 2.5).
		Logger()

	child.Info("table dispatched")

	entry := decode(t, buf)
	assert.Equal(t, "postgres", entry["engine"])
	assert.Equal(t, float64(3), entry["workers"])
	assert.Equal(t, 2.5, entry["priority"])
}

func TestLogger_ErrorWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "error", Format: "json", Output: buf})

	logger.ErrorWith("failed to connect", errors.New("database connection failed"), map[string]interface{}{
		"host": "localhost",
		"port": 5432,
	})

	entry := decode(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "database connection failed", entry["error"])
	assert.Equal(t, "localhost", entry["host"])
	assert.Equal(t, float64(5432), entry["port"])
}

func TestLogger_Context(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "info", Format: "json", Output: buf})

	ctx := logger.WithContext(context.Background())
	FromContext(ctx).Info("from context")

	assert.Equal(t, "from context", decode(t, buf)["message"])
}

func TestCtx_Fallback(t *testing.T) {
	buf := &bytes.Buffer{}
	fallback := New(&Config{Level: "info", Format: "json", Output: buf})

	assert.Same(t, fallback, Ctx(context.Background(), fallback))

	tagged := fallback.With().Str("request_id", "req-9").Logger()
	Ctx(tagged.WithContext(context.Background()), Nop()).Info("tagged")
	assert.Equal(t, "req-9", decode(t, buf)["request_id"])
}

func TestLogger_Request(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "info", Format: "json", Output: buf})

	logger.Request("POST", "/v1/scans", 502, 150*time.Millisecond, "req-1")

	entry := decode(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "/v1/scans", entry["path"])
	assert.Equal(t, float64(502), entry["status"])
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFunc  func(*Logger)
		expected bool
	}{
		{name: "debug level logs debug", level: "debug", logFunc: func(l *Logger) { l.Debug("d") }, expected: true},
		{name: "info level skips debug", level: "info", logFunc: func(l *Logger) { l.Debug("d") }, expected: false},
		{name: "warn level logs warn", level: "warn", logFunc: func(l *Logger) { l.Warn("w") }, expected: true},
		{name: "error level skips info", level: "error", logFunc: func(l *Logger) { l.Info("i") }, expected: false},
		{name: "disabled skips error", level: "disabled", logFunc: func(l *Logger) { l.Error("e") }, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.logFunc(New(&Config{Level: tt.level, Format: "json", Output: buf}))

			if tt.expected {
				assert.NotEmpty(t, buf.String(), "expected log output")
			} else {
				assert.Empty(t, buf.String(), "expected no log output")
			}
		})
	}
}

func TestSetGlobal(t *testing.T) {
	prev := L()
	t.Cleanup(func() { SetGlobal(prev) })

	buf := &bytes.Buffer{}
	l := New(&Config{Level: "info", Format: "json", Output: buf})
	SetGlobal(l)
	assert.Same(t, l, L())

	SetGlobal(nil)
	assert.Same(t, l, L(), "nil keeps the current logger")

	FromContext(context.Background()).Info("via global")
	assert.Equal(t, "via global", decode(t, buf)["message"])
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().With().Str("k", "v").Logger().Info("discarded")
	})
}

func BenchmarkLogger_WithFields(b *testing.B) {
	logger := New(&Config{Level: "info", Format: "json", Output: io.Discard})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.With().
			Str("table", "customers").
			Int("worker", i%3).
			Logger().
			Info("table scanned")
	}
}
