package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func TestWithContextAndFromContext(t *testing.T) {
	l, _ := newObservedLogger()
	ctx := WithContext(context.Background(), l)

	assert.Same(t, l, FromContext(ctx))
}

func TestFromContext_MissingLoggerReturnsNop(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	// A no-op logger discards everything without panicking.
	l.Info("dropped")
}

func TestWithRequestID(t *testing.T) {
	l, logs := newObservedLogger()

	ctx, enriched := WithRequestID(context.Background(), l, "req-123")
	assert.Equal(t, "req-123", GetRequestID(ctx))

	enriched.Info("message")
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-123", fields["request_id"])

	// The enriched logger rides along in the context.
	assert.Same(t, enriched, FromContext(ctx))
}

func TestWithSessionID(t *testing.T) {
	l, logs := newObservedLogger()

	ctx, enriched := WithSessionID(context.Background(), l, "sess-9")
	assert.Equal(t, "sess-9", GetSessionID(ctx))

	enriched.Warn("message")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "sess-9", logs.All()[0].ContextMap()["session_id"])
}

func TestGetters_EmptyContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetSessionID(ctx))
}
