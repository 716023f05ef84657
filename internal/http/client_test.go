package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shapeeat/sales-service/internal/http/ratelimit"
)

func fastConfig(retries int) ratelimit.Config {
	return ratelimit.Config{
		MaxRetries:       retries,
		InitialBackoffMs: 1,
		MaxBackoffMs:     5,
		Strategy:         ratelimit.StrategyLinear,
	}
}

func TestClientSendsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(fastConfig(0), WithToken("secret"))
	assert.True(t, c.HasToken())

	var body struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, &body))
	assert.True(t, body.OK)
}

func TestClientOmitsEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(fastConfig(0))
	assert.False(t, c.HasToken())
	_, err := c.GetBytes(context.Background(), srv.URL)
	require.NoError(t, err)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(fastConfig(2))
	_, err := c.GetBytes(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(fastConfig(2))
	_, err := c.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	var fetchErr *ratelimit.FetchRetryError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
}

func TestClientBatchProfileNeverRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(ratelimit.BatchConfig())
	_, err := c.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(err))
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound} {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(status)
		}))

		c := NewClient(fastConfig(2))
		_, err := c.Get(context.Background(), srv.URL)
		srv.Close()

		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load(), "status %d", status)
		assert.Equal(t, status, StatusOf(err))
	}
}

func TestClientStopsOnCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(ratelimit.Config{MaxRetries: 5, InitialBackoffMs: 1000, MaxBackoffMs: 1000})
	start := time.Now()
	_, err := c.Get(ctx, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClientDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	var v map[string]any
	err := NewClient(fastConfig(0)).GetJSON(context.Background(), srv.URL, &v)
	require.Error(t, err)
	assert.Zero(t, StatusOf(err))
}

func TestCalculateBackoffLinear(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	assert.Equal(t, time.Second, ratelimit.CalculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, ratelimit.CalculateBackoff(1, cfg))
	assert.Equal(t, 3*time.Second, ratelimit.CalculateBackoff(2, cfg))

	cfg.MaxBackoffMs = 1500
	assert.Equal(t, 1500*time.Millisecond, ratelimit.CalculateBackoff(4, cfg))
}

func TestCalculateBackoffExponential(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	cfg.Strategy = ratelimit.StrategyExponential

	d := ratelimit.CalculateBackoff(2, cfg)
	assert.GreaterOrEqual(t, d, 4*time.Second)
	assert.LessOrEqual(t, d, 5*time.Second)
}

func TestCalculateRateLimitBackoff(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	retryAfter := "2"
	assert.Equal(t, 2*time.Second, ratelimit.CalculateRateLimitBackoff(0, cfg, &retryAfter))
	assert.Equal(t, 3*time.Second, ratelimit.CalculateRateLimitBackoff(1, cfg, nil))

	bogus := "soon"
	assert.Equal(t, time.Second, ratelimit.CalculateRateLimitBackoff(0, cfg, &bogus))
}

func TestIsRetryableStatus(t *testing.T) {
	assert.True(t, ratelimit.IsRetryableStatus(429))
	assert.True(t, ratelimit.IsRetryableStatus(500))
	assert.True(t, ratelimit.IsRetryableStatus(503))
	assert.False(t, ratelimit.IsRetryableStatus(400))
	assert.False(t, ratelimit.IsRetryableStatus(404))
}
