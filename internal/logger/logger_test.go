package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func swapLogger(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, observed := observer.New(zapcore.DebugLevel)
	original := log
	log = zap.New(core)
	t.Cleanup(func() { log = original })
	return observed
}

func TestInit(t *testing.T) {
	originalLog := log
	defer func() { log = originalLog }()

	t.Run("Production", func(t *testing.T) {
		Init("production")
		assert.NotNil(t, log)
	})

	t.Run("Development", func(t *testing.T) {
		Init("development")
		assert.NotNil(t, log)
	})

	t.Run("LevelOverride", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "warn")
		Init("production")
		assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
	})
}

func TestL(t *testing.T) {
	originalLog := log
	defer func() { log = originalLog }()

	log = nil
	t.Setenv("APP_ENV", "test")

	assert.NotNil(t, L())
	assert.NotNil(t, log)
}

func TestContextFunctions(t *testing.T) {
	ctx := context.Background()

	t.Run("RequestIDRoundTrip", func(t *testing.T) {
		assert.Equal(t, "rid-1", RequestIDFrom(WithRequestID(ctx, "rid-1")))
		assert.Equal(t, "", RequestIDFrom(ctx))
	})

	t.Run("WithFieldsAccumulates", func(t *testing.T) {
		observed := swapLogger(t)

		c := WithFields(ctx, zap.String("persona", "kitchen"))
		c = WithFields(c, zap.Int64("order_id", 7))
		FromCtx(c).Info("advanced")

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		fields := logs[0].ContextMap()
		assert.Equal(t, "kitchen", fields["persona"])
		assert.Equal(t, int64(7), fields["order_id"])
	})
}

func TestFromCtx(t *testing.T) {
	observed := swapLogger(t)

	t.Run("WithRequestID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-abc-123")
		FromCtx(ctx).Info("test message with id")

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, "test message with id", logs[0].Message)
		assert.Equal(t, "req-abc-123", logs[0].ContextMap()["request_id"])
	})

	t.Run("WithoutRequestID", func(t *testing.T) {
		FromCtx(context.Background()).Info("test message without id")

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		_, ok := logs[0].ContextMap()["request_id"]
		assert.False(t, ok)
	})
}

func TestNamed(t *testing.T) {
	observed := swapLogger(t)

	Named("projection").Debug("poll")

	logs := observed.TakeAll()
	require.Len(t, logs, 1)
	assert.Equal(t, "projection", logs[0].ContextMap()["component"])
}

func TestSync(t *testing.T) {
	assert.NotPanics(t, func() {
		Sync()
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, RequestIDFrom(r.Context()))
	}))

	t.Run("Generates ID when missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	})

	t.Run("Preserves existing ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set(RequestIDHeader, "test-id-123")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "test-id-123", w.Header().Get(RequestIDHeader))
	})
}

func TestLoggingMiddleware(t *testing.T) {
	observed := swapLogger(t)

	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	req := httptest.NewRequest(http.MethodPatch, "/api/order-items/3/status", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	logs := observed.TakeAll()
	require.Len(t, logs, 1)
	assert.Equal(t, "incoming request", logs[0].Message)
	assert.Equal(t, "/api/order-items/3/status", logs[0].ContextMap()["path"])
	assert.Equal(t, int64(http.StatusConflict), logs[0].ContextMap()["status"])
}

func TestReplace(t *testing.T) {
	original := L()
	restore := Replace(zap.NewNop())
	assert.NotSame(t, original, log)
	restore()
	assert.Same(t, original, log)
}
