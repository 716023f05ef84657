package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// BackoffStrategy selects how the delay grows between attempts
type BackoffStrategy string

const (
	// StrategyLinear waits attempt * InitialBackoffMs
	StrategyLinear BackoffStrategy = "linear"
	// StrategyExponential waits InitialBackoffMs * 2^attempt plus jitter
	StrategyExponential BackoffStrategy = "exponential"
)

// Config holds rate limiting configuration
type Config struct {
	RequestsPerSecond int             `json:"requestsPerSecond"`
	MaxRetries        int             `json:"maxRetries"`
	InitialBackoffMs  int             `json:"initialBackoffMs"`
	MaxBackoffMs      int             `json:"maxBackoffMs"`
	Strategy          BackoffStrategy `json:"strategy"`
}

// DefaultConfig returns the interactive proxy configuration: three attempts
// in total with a linearly increasing delay.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 5,
		MaxRetries:        2,
		InitialBackoffMs:  1000,
		MaxBackoffMs:      30000,
		Strategy:          StrategyLinear,
	}
}

// BatchConfig returns the batch sync configuration. A failed page is fatal
// to the run, so nothing is retried.
func BatchConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	return cfg
}

// RateLimiter spaces outgoing requests with a token bucket
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter with the given config.
// RequestsPerSecond <= 0 disables throttling.
func NewRateLimiter(config Config) *RateLimiter {
	return &RateLimiter{limiter: newLimiter(config)}
}

func newLimiter(config Config) *rate.Limiter {
	if config.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
}

// Throttle blocks until the next request may be sent or ctx is done
func (r *RateLimiter) Throttle(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
