package ratelimit

import (
	"math"
	"math/rand/v2"
	"strconv"
	"time"
)

// FetchRetryError represents an error when all retry attempts are exhausted
type FetchRetryError struct {
	URL        string
	Attempts   int
	LastStatus int
	LastError  error
}

func (e *FetchRetryError) Error() string {
	msg := "failed to fetch " + e.URL + " after " + strconv.Itoa(e.Attempts) + " attempts"
	if e.LastStatus != 0 {
		msg += " (HTTP " + strconv.Itoa(e.LastStatus) + ")"
	}
	if e.LastError != nil {
		msg += ": " + e.LastError.Error()
	}
	return msg
}

func (e *FetchRetryError) Unwrap() error {
	return e.LastError
}

// IsRetryableStatus checks if an HTTP status code is retryable
// Retryable: 429, 500-599
func IsRetryableStatus(status int) bool {
	return status == 429 || (status >= 500 && status < 600)
}

// CalculateBackoff returns the delay before the attempt following attempt
// (zero based), according to the configured strategy, capped at MaxBackoffMs.
func CalculateBackoff(attempt int, config Config) time.Duration {
	var delayMs float64
	switch config.Strategy {
	case StrategyExponential:
		delayMs = float64(config.InitialBackoffMs) * math.Pow(2.0, float64(attempt))
		delayMs = math.Min(delayMs, float64(config.MaxBackoffMs))
		delayMs += rand.Float64() * 0.25 * delayMs
	default:
		delayMs = float64(config.InitialBackoffMs) * float64(attempt+1)
		delayMs = math.Min(delayMs, float64(config.MaxBackoffMs))
	}
	return time.Duration(delayMs * float64(time.Millisecond))
}

// CalculateRateLimitBackoff calculates backoff for HTTP 429 responses,
// honouring Retry-After when the server sends it
func CalculateRateLimitBackoff(attempt int, config Config, retryAfterHeader *string) time.Duration {
	if retryAfterHeader != nil {
		if seconds, err := strconv.Atoi(*retryAfterHeader); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	delayMs := float64(config.InitialBackoffMs) * math.Pow(3.0, float64(attempt))
	delayMs = math.Min(delayMs, float64(config.MaxBackoffMs))
	return time.Duration(delayMs * float64(time.Millisecond))
}
