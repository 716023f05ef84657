package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/shapeeat/sales-service/internal/middleware"
)

// RouteConfig holds the router settings taken from configuration
type RouteConfig struct {
	AllowedOrigins []string
	InternalAPIKey string
	// ExposeStack includes stack traces in 500 responses
	ExposeStack bool
	RateLimit   middleware.RateLimiterConfig
}

// RegisterRoutes mounts every endpoint on router. Background work started
// by the middleware stops when ctx is done.
func RegisterRoutes(ctx context.Context, router *gin.Engine, cfg RouteConfig) {
	router.Use(middleware.Recovery(deps.Logger, cfg.ExposeStack))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	router.GET("/health", HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api")
	api.Use(middleware.RateLimitMiddleware(ctx, cfg.RateLimit))
	{
		api.GET("/machines", ListMachines)
		api.GET("/sales", ListSales)
		api.GET("/test-connection", TestConnection)
		api.GET("/vendlive/*path", Passthrough)

		stats := api.Group("/stats")
		{
			stats.GET("", GetStats)
			stats.GET("/venues", GetVenueRanking)
			stats.GET("/products", GetProductRanking)
			stats.GET("/categories", GetCategories)
			stats.GET("/daily", GetDaily)
			stats.GET("/export", ExportStats)
		}
	}

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuthMiddleware(cfg.InternalAPIKey))
	internal.Use(middleware.ServiceRateLimitMiddleware(5, 10))
	{
		internal.GET("/health", HealthCheck)
		internal.POST("/sync", TriggerSync)
		internal.GET("/sync/runs", ListSyncRuns)
	}

	router.NoRoute(middleware.NotFound)
}
