package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shapeeat/sales-service/internal/analytics"
	"github.com/shapeeat/sales-service/internal/types"
)

// StatsQuery represents the query parameters shared by the stats endpoints
type StatsQuery struct {
	Period              string `form:"period" json:"period" jsonschema:"enum=today,enum=yesterday,enum=7days,enum=30days,enum=custom"`
	StartDate           string `form:"startDate" json:"startDate"`
	EndDate             string `form:"endDate" json:"endDate"`
	VenueID             string `form:"venueId" json:"venueId"`
	Category            string `form:"category" json:"category"`
	Status              string `form:"status" json:"status"`
	Source              string `form:"source" json:"source" jsonschema:"enum=lines,enum=orders"`
	ExcludePlaceholders bool   `form:"excludePlaceholders" json:"excludePlaceholders"`
	N                   int    `form:"n" json:"n" binding:"min=0,max=100" jsonschema:"minimum=0,maximum=100"`
	Order               string `form:"order" json:"order" jsonschema:"enum=top,enum=bottom"`
}

// StatsResponse wraps a statistics payload
type StatsResponse struct {
	Success bool `json:"success" jsonschema:"required"`
	Data    any  `json:"data" jsonschema:"required"`
}

func bindStats(c *gin.Context) (analytics.StatsRequest, StatsQuery, bool) {
	var q StatsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return analytics.StatsRequest{}, q, false
	}
	if deps.Stats == nil {
		unavailable(c, "Stats service")
		return analytics.StatsRequest{}, q, false
	}

	source, err := analytics.ParseSource(q.Source)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return analytics.StatsRequest{}, q, false
	}
	status := types.Status(q.Status)
	if status != "" && !status.IsValid() {
		respondError(c, http.StatusBadRequest, fmt.Errorf("invalid status %q", q.Status))
		return analytics.StatsRequest{}, q, false
	}

	return analytics.StatsRequest{
		Period:              q.Period,
		StartDate:           q.StartDate,
		EndDate:             q.EndDate,
		VenueID:             q.VenueID,
		Category:            q.Category,
		Status:              status,
		Source:              source,
		ExcludePlaceholders: q.ExcludePlaceholders,
		Limit:               q.N,
	}, q, true
}

func respondStatsError(c *gin.Context, err error) {
	if errors.Is(err, analytics.ErrInvalidPeriod) || errors.Is(err, analytics.ErrInvalidSource) {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	deps.Logger.Error().Err(err).Msg("Failed to compute stats")
	respondError(c, http.StatusInternalServerError, err)
}

// GetStats returns the period aggregates with growth against the previous period
// @Summary Period statistics
// @Tags stats
// @Produce json
// @Param period query string false "Period" Enums(today, yesterday, 7days, 30days, custom) default(30days)
// @Param startDate query string false "Custom start date (YYYY-MM-DD)"
// @Param endDate query string false "Custom end date, inclusive (YYYY-MM-DD)"
// @Param venueId query string false "Filter by venue"
// @Param category query string false "Filter by category"
// @Param source query string false "Aggregate order summaries or line items" Enums(lines, orders) default(lines)
// @Success 200 {object} StatsResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/stats [get]
func GetStats(c *gin.Context) {
	req, _, ok := bindStats(c)
	if !ok {
		return
	}
	stats, err := deps.Stats.PeriodStats(c.Request.Context(), req)
	if err != nil {
		respondStatsError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatsResponse{Success: true, Data: stats})
}

// GetVenueRanking returns the top or bottom venues of the period
// @Summary Venue leaderboard
// @Tags stats
// @Produce json
// @Param period query string false "Period" default(30days)
// @Param n query int false "Number of venues" default(5)
// @Param order query string false "Ranking order" Enums(top, bottom) default(top)
// @Success 200 {object} StatsResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/stats/venues [get]
func GetVenueRanking(c *gin.Context) {
	req, q, ok := bindStats(c)
	if !ok {
		return
	}
	if q.Order != "" && q.Order != "top" && q.Order != "bottom" {
		respondError(c, http.StatusBadRequest, fmt.Errorf("order must be top or bottom"))
		return
	}
	venues, err := deps.Stats.VenueRanking(c.Request.Context(), req, q.Order == "bottom")
	if err != nil {
		respondStatsError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatsResponse{Success: true, Data: venues})
}

// GetProductRanking returns the best selling products of the period
// @Summary Product leaderboard
// @Tags stats
// @Produce json
// @Param period query string false "Period" default(30days)
// @Param n query int false "Number of products" default(20)
// @Success 200 {object} StatsResponse
// @Router /api/stats/products [get]
func GetProductRanking(c *gin.Context) {
	req, _, ok := bindStats(c)
	if !ok {
		return
	}
	products, err := deps.Stats.ProductRanking(c.Request.Context(), req)
	if err != nil {
		respondStatsError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatsResponse{Success: true, Data: products})
}

// GetCategories returns the revenue per category of the period
// @Summary Category breakdown
// @Tags stats
// @Produce json
// @Param period query string false "Period" default(30days)
// @Success 200 {object} StatsResponse
// @Router /api/stats/categories [get]
func GetCategories(c *gin.Context) {
	req, _, ok := bindStats(c)
	if !ok {
		return
	}
	categories, err := deps.Stats.Categories(c.Request.Context(), req)
	if err != nil {
		respondStatsError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatsResponse{Success: true, Data: categories})
}

// GetDaily returns the revenue per UTC day of the period
// @Summary Daily revenue series
// @Tags stats
// @Produce json
// @Param period query string false "Period" default(30days)
// @Success 200 {object} StatsResponse
// @Router /api/stats/daily [get]
func GetDaily(c *gin.Context) {
	req, _, ok := bindStats(c)
	if !ok {
		return
	}
	daily, err := deps.Stats.Daily(c.Request.Context(), req)
	if err != nil {
		respondStatsError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatsResponse{Success: true, Data: daily})
}

// ExportStats downloads every aggregate of the period as an XLSX workbook
// @Summary Export statistics
// @Tags stats
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param period query string false "Period" default(30days)
// @Success 200 {file} file
// @Router /api/stats/export [get]
func ExportStats(c *gin.Context) {
	req, _, ok := bindStats(c)
	if !ok {
		return
	}
	report, err := deps.Stats.Report(c.Request.Context(), req)
	if err != nil {
		respondStatsError(c, err)
		return
	}

	filename := "sales-" + report.Period + "-" + strconv.FormatInt(report.GeneratedAt.Unix(), 10) + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Last-Modified", report.GeneratedAt.Format(time.RFC1123))
	c.Status(http.StatusOK)
	if err := analytics.ExportXLSX(c.Writer, report); err != nil {
		deps.Logger.Error().Err(err).Msg("Failed to write export")
	}
}
