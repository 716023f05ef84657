package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shapeeat/sales-service/internal/pipeline"
	"github.com/shapeeat/sales-service/internal/scheduler"
	"github.com/shapeeat/sales-service/internal/types"
)

// SyncRequest represents the body of a sync trigger
type SyncRequest struct {
	Mode      string `json:"mode" jsonschema:"enum=incremental,enum=full"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	MaxPages  int    `json:"maxPages" binding:"min=0" jsonschema:"minimum=0"`
}

// SyncStartedResponse is returned once a sync was started
type SyncStartedResponse struct {
	Success bool   `json:"success" jsonschema:"required"`
	Message string `json:"message" jsonschema:"required"`
	Mode    string `json:"mode" jsonschema:"required"`
}

// ListSyncRunsRequest represents query parameters for listing sync runs
type ListSyncRunsRequest struct {
	Limit int `form:"limit" json:"limit" binding:"min=0,max=100" jsonschema:"minimum=0,maximum=100"`
}

// SyncRunsResponse is the sync run history
type SyncRunsResponse struct {
	Success bool            `json:"success" jsonschema:"required"`
	Data    []types.SyncRun `json:"data" jsonschema:"required"`
	Running bool            `json:"running"`
}

// TriggerSync starts a sync in the background
// @Summary Trigger a sync
// @Description Starts an incremental or full sync. Only one sync runs at a time.
// @Tags sync
// @Accept json
// @Produce json
// @Param request body SyncRequest false "Sync options"
// @Success 202 {object} SyncStartedResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Sync already running"
// @Router /internal/sync [post]
func TriggerSync(c *gin.Context) {
	var req SyncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, err)
			return
		}
	}
	if req.Mode == "" {
		req.Mode = string(types.SyncModeIncremental)
	}
	if deps.Sync == nil {
		unavailable(c, "Sync")
		return
	}

	opts := pipeline.Options{
		Mode:      types.SyncMode(req.Mode),
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		MaxPages:  req.MaxPages,
	}
	if err := opts.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := deps.Sync.Trigger(c.Request.Context(), opts); err != nil {
		if errors.Is(err, scheduler.ErrRunInProgress) {
			respondError(c, http.StatusConflict, err)
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	deps.Logger.Info().
		Str("mode", req.Mode).
		Str("start_date", req.StartDate).
		Str("end_date", req.EndDate).
		Msg("Sync triggered")

	c.JSON(http.StatusAccepted, SyncStartedResponse{
		Success: true,
		Message: "Sync started",
		Mode:    req.Mode,
	})
}

// ListSyncRuns returns the most recent sync runs
// @Summary List sync runs
// @Tags sync
// @Produce json
// @Param limit query int false "Number of runs" default(20) minimum(0) maximum(100)
// @Success 200 {object} SyncRunsResponse
// @Router /internal/sync/runs [get]
func ListSyncRuns(c *gin.Context) {
	var req ListSyncRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if deps.Store == nil {
		unavailable(c, "Store")
		return
	}
	if req.Limit == 0 {
		req.Limit = 20
	}

	runs, err := deps.Store.ListSyncRuns(c.Request.Context(), req.Limit)
	if err != nil {
		deps.Logger.Error().Err(err).Msg("Failed to list sync runs")
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []types.SyncRun{}
	}

	c.JSON(http.StatusOK, SyncRunsResponse{
		Success: true,
		Data:    runs,
		Running: deps.Sync != nil && deps.Sync.Running(),
	})
}
