package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubRegistrar struct {
	prefix string
}

func (s *stubRegistrar) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET(s.prefix+"/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
}

func TestRouter_Setup(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("registers routes under default version", func(t *testing.T) {
		engine := gin.New()
		NewRouter(engine).
			Register(&stubRegistrar{prefix: "/alpha"}).
			Register(&stubRegistrar{prefix: "/beta"}).
			Setup()

		for _, path := range []string{"/api/v1/alpha/ping", "/api/v1/beta/ping"} {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code, path)
		}
	})

	t.Run("honors custom API version", func(t *testing.T) {
		engine := gin.New()
		NewRouter(engine, WithAPIVersion("v2")).
			Register(&stubRegistrar{prefix: "/alpha"}).
			Setup()

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/alpha/ping", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/alpha/ping", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
