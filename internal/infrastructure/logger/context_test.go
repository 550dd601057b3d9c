package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

func TestWithContext(t *testing.T) {
	logger := zap.NewNop()
	ctx := WithContext(context.Background(), logger)

	assert.Equal(t, logger, FromContext(ctx))
}

func TestFromContext_NotFound(t *testing.T) {
	got := FromContext(context.Background())
	assert.NotNil(t, got)
}

func TestWithRequestID(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	newCtx, newLogger := WithRequestID(ctx, logger, "req-123")

	assert.NotNil(t, newLogger)
	assert.Equal(t, "req-123", GetRequestID(newCtx))
	assert.Empty(t, GetRequestID(ctx))
}

func TestWithUserID(t *testing.T) {
	logger := zap.NewNop()

	newCtx, newLogger := WithUserID(context.Background(), logger, "user-456")

	assert.NotNil(t, newLogger)
	assert.Equal(t, "user-456", GetUserID(newCtx))
}

func TestGetRequestID_NotFound(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestContextLogger_InjectsContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := context.Background()
	ctx, _ = WithRequestID(ctx, base, "req-123")
	ctx = context.WithValue(ctx, UserIDKey, "user-456")

	WithLogger(ctx, base).Info("something happened")

	entries := logs.All()
	assert.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "req-123", fields["request_id"])
	assert.Equal(t, "user-456", fields["user_id"])
}

func TestContextLogger_NilLogger(t *testing.T) {
	cl := &ContextLogger{ctx: context.Background()}

	assert.NotPanics(t, func() {
		cl.Info("no destination")
	})
}

func TestContextLogger_With(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithLogger(context.Background(), base).
		With(zap.String("order_id", "JD000001")).
		Info("order placed")

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "JD000001", entries[0].ContextMap()["order_id"])
}

func TestContextLogger_Zap(t *testing.T) {
	base := zap.NewNop()
	cl := WithLogger(context.Background(), base)

	assert.NotNil(t, cl.Zap())
}
