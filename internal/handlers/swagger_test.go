package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// TestSwaggerDependenciesImportable verifies that the gin-swagger handler can be created
func TestSwaggerDependenciesImportable(t *testing.T) {
	handler := ginSwagger.WrapHandler(swaggerFiles.Handler)
	assert.NotNil(t, handler, "ginSwagger.WrapHandler should return a non-nil handler")
}

// TestRouteRegistration verifies every endpoint is mounted
func TestRouteRegistration(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	Init(Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.NotPanics(t, func() {
		RegisterRoutes(ctx, router, RouteConfig{InternalAPIKey: "key"})
	})

	registered := make(map[string]bool)
	for _, route := range router.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /metrics",
		"GET /swagger/*any",
		"GET /api/machines",
		"GET /api/sales",
		"GET /api/test-connection",
		"GET /api/vendlive/*path",
		"GET /api/stats",
		"GET /api/stats/venues",
		"GET /api/stats/products",
		"GET /api/stats/categories",
		"GET /api/stats/daily",
		"GET /api/stats/export",
		"POST /internal/sync",
		"GET /internal/sync/runs",
	} {
		assert.True(t, registered[want], "route %s should be registered", want)
	}
}

// TestUnconfiguredDependencies verifies endpoints answer 503 without their collaborators
func TestUnconfiguredDependencies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	Init(Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	RegisterRoutes(ctx, router, RouteConfig{InternalAPIKey: "key"})

	e := &env{router: router}
	assert.Equal(t, http.StatusServiceUnavailable, e.do("GET", "/api/machines", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, e.do("GET", "/api/stats", nil).Code)

	w := e.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "not configured", decode(t, w)["database"])
}
