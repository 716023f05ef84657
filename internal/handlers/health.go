package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status             string `json:"status" jsonschema:"required"`
	Timestamp          string `json:"timestamp" jsonschema:"required"`
	VendLiveConfigured bool   `json:"vendlive_configured" jsonschema:"required"`
	BackendVersion     string `json:"backend_version" jsonschema:"required"`
	Database           string `json:"database" jsonschema:"required"`
}

// HealthCheck handles the health check endpoint
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse "Database unreachable"
// @Router /health [get]
func HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:             "ok",
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		VendLiveConfigured: deps.VendLive != nil && deps.VendLive.Configured(),
		BackendVersion:     deps.Version,
	}

	if deps.Store != nil && !deps.InMemoryStore {
		if err := deps.Store.Ping(c.Request.Context()); err != nil {
			response.Status = "degraded"
			response.Database = "disconnected"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
		response.Database = "connected"
	} else {
		response.Database = "not configured"
	}

	c.JSON(http.StatusOK, response)
}
