package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ledgerlens/backend/internal/application/receivables"
	"github.com/ledgerlens/backend/internal/interfaces/http/dto"
)

// SystemHandler handles system-related API endpoints
type SystemHandler struct {
	BaseHandler
	svc       *receivables.Service
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(svc *receivables.Service) *SystemHandler {
	return &SystemHandler{
		svc:       svc,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers the system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	system := rg.Group("/system")
	{
		system.GET("/info", h.GetSystemInfo)
		system.GET("/health", h.GetHealth)
	}
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// GetSystemInfo returns basic system information including version and uptime
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      "LedgerLens Backend API",
		Version:   "1.0.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(info))
}

// HealthResponse reports liveness plus the most recent unsuppressed upstream
// failure, if any.
type HealthResponse struct {
	Status        string `json:"status"`
	UpstreamError string `json:"upstream_error,omitempty"`
}

// GetHealth returns the service health
func (h *SystemHandler) GetHealth(c *gin.Context) {
	resp := HealthResponse{Status: "ok"}
	if err := h.svc.LastError(); err != nil {
		resp.Status = "degraded"
		resp.UpstreamError = err.Error()
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(resp))
}
