package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/backend/internal/application/receivables"
	"github.com/ledgerlens/backend/internal/domain/dataset"
	"github.com/ledgerlens/backend/internal/infrastructure/cache"
	"github.com/ledgerlens/backend/internal/infrastructure/tally"
	"github.com/ledgerlens/backend/internal/interfaces/http/router"
)

func newSystemRouter(t *testing.T, fetch fetcherFunc) (*gin.Engine, *receivables.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c := cache.NewTieredCache(cache.NewMemoryStore(), nil)
	svc := receivables.NewService(fetch, c, handlerBuckets())

	engine := gin.New()
	router.NewRouter(engine).Register(NewSystemHandler(svc)).Setup()
	return engine, svc
}

func TestSystem_Info(t *testing.T) {
	engine, _ := newSystemRouter(t, healthyFetcher())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/system/info", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data SystemInfoResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "LedgerLens Backend API", resp.Data.Name)
	assert.NotEmpty(t, resp.Data.GoVersion)
}

func TestSystem_Health(t *testing.T) {
	fail := false
	engine, svc := newSystemRouter(t, func(ctx context.Context, company tally.Company, formula string) (dataset.Dataset, error) {
		if fail {
			return dataset.Dataset{}, tally.ErrUnavailable
		}
		return upstreamDataset(), nil
	})

	getHealth := func() HealthResponse {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/system/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data HealthResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp.Data
	}

	assert.Equal(t, "ok", getHealth().Status)

	fail = true
	_, err := svc.Fetch(context.Background(), tally.Company{GUID: "g1"}, "", false)
	require.Error(t, err)

	health := getHealth()
	assert.Equal(t, "degraded", health.Status)
	assert.NotEmpty(t, health.UpstreamError)

	fail = false
	_, err = svc.Fetch(context.Background(), tally.Company{GUID: "g1"}, "", false)
	require.NoError(t, err)
	assert.Equal(t, "ok", getHealth().Status)
}
