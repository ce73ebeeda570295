package logging

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func newTestLogger(t *testing.T) (Logger, *zaptest.Buffer) {
	t.Helper()
	buf := &zaptest.Buffer{}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), buf, zapcore.DebugLevel)
	return &zapLogger{z: zap.New(core)}, buf
}

func decodeLines(t *testing.T, buf *zaptest.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range buf.Lines() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		l, err := NewLogger(LogConfig{Level: "debug", Format: format, Name: "clinterm"})
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}
}

func TestNewLogger_BadOutputPath(t *testing.T) {
	l, err := NewLogger(LogConfig{OutputPaths: []string{"/nonexistent-dir/a/b/c.log"}})
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestZapLogger_FieldsAreEncoded(t *testing.T) {
	l, buf := newTestLogger(t)

	l.Info("term resolved",
		String("term", "tummy ache"),
		Int("rating", 4),
		Float64("iou", 0.5),
		Bool("resolved", true),
		Duration("elapsed", 2*time.Second),
		Strings("terms", []string{"fever", "cough"}),
		Err(errors.New("boom")),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	entry := lines[0]
	assert.Equal(t, "term resolved", entry["msg"])
	assert.Equal(t, "tummy ache", entry["term"])
	assert.EqualValues(t, 4, entry["rating"])
	assert.Equal(t, true, entry["resolved"])
	assert.Equal(t, "boom", entry["error"])
	assert.Len(t, entry["terms"], 2)
}

func TestZapLogger_WithAndNamed(t *testing.T) {
	l, buf := newTestLogger(t)

	child := l.Named("resolver").With(String("strategy", "simplified"))
	child.Warn("tier produced no candidate")

	entry := decodeLines(t, buf)[0]
	assert.Equal(t, "resolver", entry["logger"])
	assert.Equal(t, "simplified", entry["strategy"])
	assert.Equal(t, "warn", entry["level"])
}

func TestZapLogger_WithContextAddsRequestID(t *testing.T) {
	l, buf := newTestLogger(t)

	ctx := ContextWithRequestID(context.Background(), "req-42")
	l.WithContext(ctx).Info("line processed")
	l.WithContext(context.Background()).Info("no id")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "req-42", lines[0]["request_id"])
	_, has := lines[1]["request_id"]
	assert.False(t, has)
}

func TestRequestIDFromContext(t *testing.T) {
	_, ok := RequestIDFromContext(context.Background())
	assert.False(t, ok)

	id, ok := RequestIDFromContext(ContextWithRequestID(context.Background(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = RequestIDFromContext(ContextWithRequestID(context.Background(), ""))
	assert.False(t, ok)
}

func TestErr_Nil(t *testing.T) {
	f := Err(nil)
	assert.Equal(t, "error", f.Key)
	assert.Equal(t, "<nil>", f.Value)
}

func TestNopLogger_AllMethodsNoOp(t *testing.T) {
	l := NewNopLogger()
	l.Debug("msg")
	l.Info("msg")
	l.Warn("msg")
	l.Error("msg")
	assert.NotNil(t, l.With(String("k", "v")))
	assert.NotNil(t, l.Named("x"))
	assert.NotNil(t, l.WithContext(context.Background()))
	assert.NoError(t, l.Sync())
}

func TestDefaultLogger(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	l, buf := newTestLogger(t)
	SetDefault(l)
	SetDefault(nil)
	Default().Info("via default")

	assert.True(t, strings.Contains(buf.String(), "via default"))
}

func TestSetLevel_SharedByDerivedLoggers(t *testing.T) {
	buf := &zaptest.Buffer{}
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), buf, level)
	root := &zapLogger{z: zap.New(core), level: &level}
	child := root.Named("worker").With(String("k", "v"))

	child.Debug("hidden")
	require.True(t, SetLevel(root, "debug"))
	child.Debug("shown")

	lines := buf.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "shown")

	assert.False(t, SetLevel(NewNopLogger(), "debug"))
}
