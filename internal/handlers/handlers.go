// Package handlers implements the HTTP surface: the VendLive proxy, the
// statistics API and the internal sync endpoints
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shapeeat/sales-service/internal/analytics"
	httpclient "github.com/shapeeat/sales-service/internal/http"
	"github.com/shapeeat/sales-service/internal/http/ratelimit"
	"github.com/shapeeat/sales-service/internal/pipeline"
	"github.com/shapeeat/sales-service/internal/storage"
	"github.com/shapeeat/sales-service/internal/vendlive"
)

// SyncTrigger starts background syncs
type SyncTrigger interface {
	Trigger(ctx context.Context, opts pipeline.Options) error
	Running() bool
}

// Deps are the collaborators of the handlers. Any of them may be nil, in
// which case the endpoints relying on it answer 503.
type Deps struct {
	VendLive *vendlive.Client
	Store    storage.Store
	Stats    *analytics.Service
	Sync     SyncTrigger
	Version  string
	Logger   *zerolog.Logger

	// InMemoryStore marks Store as the process-local fallback used when no
	// database is configured
	InMemoryStore bool
}

// Global dependencies (initialized by the application)
var deps Deps

// Init sets the handler dependencies. It should be called during
// application startup, before the router serves requests.
func Init(d Deps) {
	if d.Logger == nil {
		l := log.With().Str("component", "handlers").Logger()
		d.Logger = &l
	}
	deps = d
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success bool   `json:"success" jsonschema:"required"`
	Error   string `json:"error" jsonschema:"required"`
}

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, ErrorResponse{Success: false, Error: err.Error()})
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{Success: false, Error: what + " not configured"})
}

// upstreamStatus maps an upstream failure to the status returned to the
// dashboard: auth, missing and throttled answers keep their status, other
// upstream failures are a bad gateway
func upstreamStatus(err error) int {
	var fetchErr *ratelimit.FetchRetryError
	if !errors.As(err, &fetchErr) {
		return http.StatusInternalServerError
	}
	switch status := httpclient.StatusOf(err); status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusTooManyRequests:
		return status
	default:
		return http.StatusBadGateway
	}
}
