package vendlive

import (
	"github.com/rs/zerolog"

	"github.com/shapeeat/sales-service/config"
	httpclient "github.com/shapeeat/sales-service/internal/http"
	"github.com/shapeeat/sales-service/internal/http/ratelimit"
)

// Profile selects how a client from configuration behaves
type Profile int

const (
	// ProfileProxy retries failed requests, caps pages and never pauses
	// between pages
	ProfileProxy Profile = iota
	// ProfileBatch never retries, pauses between pages and only stops at
	// the sync page cap
	ProfileBatch
)

// NewFromConfig builds a client for the given profile
func NewFromConfig(cfg *config.Config, profile Profile, logger *zerolog.Logger) (*Client, error) {
	rl := ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		MaxRetries:        cfg.RateLimit.MaxRetries,
		InitialBackoffMs:  cfg.RateLimit.InitialBackoffMs,
		MaxBackoffMs:      cfg.RateLimit.MaxBackoffMs,
		Strategy:          ratelimit.BackoffStrategy(cfg.RateLimit.Strategy),
	}

	opts := Options{
		BaseURL:           cfg.VendLive.BaseURL,
		PageSize:          cfg.VendLive.PageSize,
		SalesMaxPages:     cfg.VendLive.SalesMaxPages,
		MachinesMaxPages:  cfg.VendLive.MachinesMaxPages,
		EnrichConcurrency: cfg.VendLive.EnrichConcurrency,
		Logger:            logger,
	}
	if profile == ProfileBatch {
		rl.MaxRetries = 0
		opts.SalesMaxPages = cfg.Sync.MaxPages
		opts.PageDelay = cfg.Sync.PageDelay
	}

	hcOpts := []httpclient.Option{
		httpclient.WithToken(cfg.VendLive.APIToken),
		httpclient.WithTimeout(cfg.VendLive.Timeout),
	}
	if logger != nil {
		hcOpts = append(hcOpts, httpclient.WithLogger(logger.With().Str("component", "http").Logger()))
	}

	return NewClient(httpclient.NewClient(rl, hcOpts...), opts)
}
