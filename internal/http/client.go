package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/shapeeat/sales-service/internal/http/ratelimit"
)

const userAgent = "ShapeEat-SalesService/1.0"

var upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "vendlive_request_duration_seconds",
	Help:    "Duration of upstream VendLive requests by method and status",
	Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
}, []string{"method", "status"})

// Client is an HTTP client for the VendLive API with token auth, rate
// limiting and retry logic
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.RateLimiter
	config      ratelimit.Config
	token       string
	logger      zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithToken sets the static API token sent as "Authorization: Token <value>"
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithLogger sets the logger used for retry diagnostics
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a new HTTP client with rate limiting
func NewClient(config ratelimit.Config, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		rateLimiter: ratelimit.NewRateLimiter(config),
		config:      config,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasToken reports whether an API token is configured
func (c *Client) HasToken() bool {
	return c.token != ""
}

// Get performs a GET request with rate limiting and retry logic
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil)
}

// Do performs an HTTP request with rate limiting and retry logic. The
// caller owns the returned body. Non-2xx responses are returned as
// *ratelimit.FetchRetryError.
func (c *Client) Do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var lastStatus int
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.rateLimiter.Throttle(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, &ratelimit.FetchRetryError{URL: url, Attempts: attempt + 1, LastError: err}
		}

		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Token "+c.token)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			upstreamDuration.WithLabelValues(method, "error").Observe(time.Since(start).Seconds())
			lastErr = err
			if ctx.Err() != nil {
				return nil, &ratelimit.FetchRetryError{URL: url, Attempts: attempt + 1, LastError: ctx.Err()}
			}
			if attempt < c.config.MaxRetries {
				if err := c.wait(ctx, url, attempt, ratelimit.CalculateBackoff(attempt, c.config), err); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &ratelimit.FetchRetryError{
				URL:        url,
				Attempts:   attempt + 1,
				LastStatus: lastStatus,
				LastError:  lastErr,
			}
		}
		upstreamDuration.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

		lastStatus = resp.StatusCode

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		resp.Body.Close()

		if !ratelimit.IsRetryableStatus(resp.StatusCode) || attempt == c.config.MaxRetries {
			return nil, &ratelimit.FetchRetryError{
				URL:        url,
				Attempts:   attempt + 1,
				LastStatus: resp.StatusCode,
			}
		}

		var backoff time.Duration
		if resp.StatusCode == http.StatusTooManyRequests {
			var retryAfterPtr *string
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				retryAfterPtr = &retryAfter
			}
			backoff = ratelimit.CalculateRateLimitBackoff(attempt, c.config, retryAfterPtr)
		} else {
			backoff = ratelimit.CalculateBackoff(attempt, c.config)
		}

		if err := c.wait(ctx, url, attempt, backoff, fmt.Errorf("HTTP %d", resp.StatusCode)); err != nil {
			return nil, err
		}
	}

	return nil, &ratelimit.FetchRetryError{
		URL:        url,
		Attempts:   c.config.MaxRetries + 1,
		LastStatus: lastStatus,
		LastError:  lastErr,
	}
}

func (c *Client) wait(ctx context.Context, url string, attempt int, backoff time.Duration, cause error) error {
	c.logger.Warn().
		Err(cause).
		Str("url", url).
		Int("attempt", attempt+1).
		Dur("backoff", backoff).
		Msg("Upstream request failed, retrying")
	if err := ratelimit.Sleep(ctx, backoff); err != nil {
		return &ratelimit.FetchRetryError{URL: url, Attempts: attempt + 1, LastError: err}
	}
	return nil
}

// GetBytes performs a GET request and returns the response body as bytes
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

// GetJSON performs a GET request and decodes the JSON body into v
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	data, err := c.GetBytes(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

// StatusOf extracts the upstream HTTP status from an error returned by the
// client, or 0 when the failure happened before a response was received
func StatusOf(err error) int {
	var fetchErr *ratelimit.FetchRetryError
	if errors.As(err, &fetchErr) {
		return fetchErr.LastStatus
	}
	return 0
}

// GetConfig returns the current rate limit config
func (c *Client) GetConfig() ratelimit.Config {
	return c.config
}
