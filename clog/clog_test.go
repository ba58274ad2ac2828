package clog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level string, opts ...Option) (Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	opts = append(opts, WithBuffer(buf))
	logger, err := New(&Config{Level: level, Format: "json", Output: "buffer"}, opts...)
	require.NoError(t, err)
	return logger, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "nil config", config: nil},
		{name: "valid console", config: &Config{Level: "info", Format: "console", Output: "stdout"}},
		{name: "defaults filled", config: &Config{}},
		{name: "invalid level", config: &Config{Level: "verbose"}, wantErr: true},
		{name: "invalid format", config: &Config{Format: "xml"}, wantErr: true},
		{name: "buffer without option", config: &Config{Output: "buffer"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestLoggerFieldsAndNamespace(t *testing.T) {
	logger, buf := newBufferLogger(t, "debug", WithNamespace("coord"))

	logger.WithNamespace("dlock").
		With(String("path", "/locks/a")).
		Info("lock acquired", Int("depth", 2), Error(nil))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "lock acquired", lines[0]["msg"])
	assert.Equal(t, "coord.dlock", lines[0][NamespaceKey])
	assert.Equal(t, "/locks/a", lines[0]["path"])
	assert.EqualValues(t, 2, lines[0]["depth"])
	_, hasEmpty := lines[0][""]
	assert.False(t, hasEmpty)
}

func TestSetLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, "warn")
	child := logger.With(String("k", "v"))

	child.Info("dropped")
	assert.Empty(t, buf.String())

	require.NoError(t, logger.SetLevel(DebugLevel))
	child.Debug("kept")
	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "DEBUG", lines[0]["level"])
}

func TestContextFields(t *testing.T) {
	logger, buf := newBufferLogger(t, "info", WithStandardContext())

	ctx := context.WithValue(context.Background(), "trace_id", "abc123")
	logger.WarnContext(ctx, "slow lock")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "abc123", lines[0]["trace_id"])
	assert.Equal(t, "WARN", lines[0]["level"])
}

func TestErrorFields(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")

	err := errors.New("backend down")
	logger.Error("release failed",
		ErrorWithCode(err, "DLOCK_RELEASE_FAILED"),
		ErrorWithStack(err, "main.main\n\tmain.go:10"),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	group, ok := lines[0]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "backend down", group["msg"])
	assert.Contains(t, group["stack"], "main.go:10")
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "warn", "Error", "fatal"} {
		lvl, err := ParseLevel(s)
		require.NoError(t, err)
		assert.Equal(t, strings.ToLower(s), lvl.String())
	}
	lvl, err := ParseLevel("nope")
	assert.Error(t, err)
	assert.Equal(t, InfoLevel, lvl)
}

func TestDiscardAndDefault(t *testing.T) {
	d := Discard()
	d.With(String("a", "b")).WithNamespace("x").Info("nothing")
	assert.NoError(t, d.SetLevel(DebugLevel))

	assert.NotNil(t, Default())
	SetDefault(d)
	assert.Equal(t, d, Default())
}
