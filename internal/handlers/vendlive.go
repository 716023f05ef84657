package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shapeeat/sales-service/internal/types"
	"github.com/shapeeat/sales-service/internal/vendlive"
)

// Sales listing limits
const (
	DefaultSalesLimit = 1000
	MaxSalesLimit     = 10000
)

// MachinesResponse is the enriched machine listing
type MachinesResponse struct {
	Success bool            `json:"success" jsonschema:"required"`
	Data    []types.Machine `json:"data" jsonschema:"required"`
	Total   int             `json:"total" jsonschema:"required"`
}

// SalesResponse is the raw sales listing
type SalesResponse struct {
	Success bool              `json:"success" jsonschema:"required"`
	Data    []json.RawMessage `json:"data" jsonschema:"required"`
	Total   int               `json:"total" jsonschema:"required"`
}

// ConnectionResponse is the result of an upstream smoke test
type ConnectionResponse struct {
	Success bool   `json:"success" jsonschema:"required"`
	Message string `json:"message" jsonschema:"required"`
	Status  int    `json:"status"`
}

// ListMachines returns every machine with its isEnabled flag
// @Summary List machines
// @Description Paginates the upstream machines listing and enriches each machine with its device enabled flag
// @Tags vendlive
// @Produce json
// @Success 200 {object} MachinesResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/machines [get]
func ListMachines(c *gin.Context) {
	if deps.VendLive == nil {
		unavailable(c, "VendLive client")
		return
	}
	ctx := c.Request.Context()

	machines, err := deps.VendLive.ListMachines(ctx)
	if err != nil {
		deps.Logger.Error().Err(err).Msg("Failed to list machines")
		respondError(c, upstreamStatus(err), err)
		return
	}
	machines = deps.VendLive.EnrichMachines(ctx, machines)

	c.JSON(http.StatusOK, MachinesResponse{Success: true, Data: machines, Total: len(machines)})
}

// ListSales returns raw upstream sales
// @Summary List sales
// @Description Paginates upstream sales for a date range, up to limit records
// @Tags vendlive
// @Produce json
// @Param startDate query string false "Start date (YYYY-MM-DD)"
// @Param endDate query string false "End date (YYYY-MM-DD)"
// @Param limit query int false "Maximum records" default(1000) minimum(1) maximum(10000)
// @Success 200 {object} SalesResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/sales [get]
func ListSales(c *gin.Context) {
	limit, err := parseSalesLimit(c.Query("limit"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if deps.VendLive == nil {
		unavailable(c, "VendLive client")
		return
	}

	sales, err := deps.VendLive.ListSales(c.Request.Context(), vendlive.SalesQuery{
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
	}, limit)
	if err != nil {
		deps.Logger.Error().Err(err).Msg("Failed to list sales")
		respondError(c, upstreamStatus(err), err)
		return
	}

	c.JSON(http.StatusOK, SalesResponse{Success: true, Data: sales, Total: len(sales)})
}

func parseSalesLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultSalesLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > MaxSalesLimit {
		return 0, fmt.Errorf("limit must be an integer between 1 and %d", MaxSalesLimit)
	}
	return limit, nil
}

// Passthrough forwards an authenticated GET to the upstream API
// @Summary VendLive passthrough
// @Description Forwards the request path and query to the upstream API with the server-side token
// @Tags vendlive
// @Produce json
// @Param path path string true "Upstream API path"
// @Success 200 {object} map[string]interface{}
// @Failure 502 {object} ErrorResponse
// @Router /api/vendlive/{path} [get]
func Passthrough(c *gin.Context) {
	if deps.VendLive == nil {
		unavailable(c, "VendLive client")
		return
	}
	path := strings.TrimPrefix(c.Param("path"), "/")

	resp, err := deps.VendLive.Passthrough(c.Request.Context(), path, c.Request.URL.RawQuery)
	if err != nil {
		deps.Logger.Warn().Err(err).Str("path", path).Msg("Passthrough failed")
		respondError(c, upstreamStatus(err), err)
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.Status, contentType, resp.Body)
}

// TestConnection smoke-tests upstream reachability and credentials
// @Summary Test upstream connection
// @Tags vendlive
// @Produce json
// @Success 200 {object} ConnectionResponse
// @Failure 502 {object} ConnectionResponse
// @Router /api/test-connection [get]
func TestConnection(c *gin.Context) {
	if deps.VendLive == nil {
		unavailable(c, "VendLive client")
		return
	}

	status, err := deps.VendLive.TestConnection(c.Request.Context())
	if err != nil {
		c.JSON(upstreamStatus(err), ConnectionResponse{
			Success: false,
			Message: err.Error(),
			Status:  status,
		})
		return
	}
	c.JSON(http.StatusOK, ConnectionResponse{
		Success: true,
		Message: "Connection to VendLive API successful",
		Status:  status,
	})
}
