package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("logs successful requests at info", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		router := gin.New()
		router.Use(GinMiddleware(zap.New(core)))
		router.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping?verbose=1", nil)
		router.ServeHTTP(w, req)

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, zapcore.InfoLevel, entry.Level)
		fields := entry.ContextMap()
		assert.Equal(t, "/ping", fields["path"])
		assert.Equal(t, "GET", fields["method"])
		assert.Equal(t, int64(http.StatusOK), fields["status"])
		assert.Equal(t, "verbose=1", fields["query"])
	})

	t.Run("logs server errors at error level", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		router := gin.New()
		router.Use(GinMiddleware(zap.New(core)))
		router.GET("/boom", func(c *gin.Context) {
			c.Status(http.StatusInternalServerError)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
	})

	t.Run("logs client errors at warn level", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		router := gin.New()
		router.Use(GinMiddleware(zap.New(core)))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	})

	t.Run("exposes request-scoped logger to handlers", func(t *testing.T) {
		core, _ := observer.New(zap.DebugLevel)
		router := gin.New()
		router.Use(GinMiddleware(zap.New(core)))
		router.GET("/scoped", func(c *gin.Context) {
			require.NotNil(t, GetGinLogger(c))
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scoped", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zap.DebugLevel)
	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Panic recovered", logs.All()[0].Message)
}

func TestGetGinLogger_MissingReturnsNop(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.NotNil(t, GetGinLogger(c))
}
