package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_WritesFieldsAndWith(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLogger(zap.New(core))
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.With("module", "switcher").Warn(ctx, "wrn", "user_id", "u1")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "dbg", entries[0].Message)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)

	fields := entries[1].ContextMap()
	assert.Equal(t, "switcher", fields["module"])
	assert.Equal(t, "u1", fields["user_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestNew_SelectsImplementation(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("json", &buf)
	require.NoError(t, err)
	_, ok := l.(*SlogLogger)
	assert.True(t, ok)

	l.Info(context.Background(), "hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	l, err = New("zap", &buf)
	require.NoError(t, err)
	_, ok = l.(*ZapLogger)
	assert.True(t, ok)
}

func TestNopLogger_DoesNotPanic(t *testing.T) {
	var l Logger = NopLogger{}
	l.With("a", 1).Error(context.Background(), "x")
}
