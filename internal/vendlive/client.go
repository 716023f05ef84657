// Package vendlive talks to the VendLive vending platform API
package vendlive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	httpclient "github.com/shapeeat/sales-service/internal/http"
	"github.com/shapeeat/sales-service/internal/types"
)

// API paths
const (
	SalesPath    = "api/2.0/order-sales/"
	MachinesPath = "api/2.0/machines/"
	devicePath   = "api/2.0/machines/%s/device/"
)

// DateLayout is the upstream date query format
const DateLayout = "2006-01-02"

var errLimitReached = errors.New("limit reached")

// Options configures a Client
type Options struct {
	BaseURL           string
	PageSize          int
	SalesMaxPages     int
	MachinesMaxPages  int
	EnrichConcurrency int
	// PageDelay is only used by batch callers
	PageDelay time.Duration
	Logger    *zerolog.Logger
}

// Client exposes the VendLive operations used by the proxy and the sync
type Client struct {
	http    *httpclient.Client
	opts    Options
	sales   *Paginator
	machine *Paginator
	logger  zerolog.Logger
}

// NewClient creates a VendLive client on top of a configured HTTP client
func NewClient(hc *httpclient.Client, opts Options) (*Client, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.EnrichConcurrency <= 0 {
		opts.EnrichConcurrency = 10
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "vendlive").Logger()
	}

	sales, err := NewPaginator(hc, opts.BaseURL, PaginatorOptions{
		MaxPages:  opts.SalesMaxPages,
		PageDelay: opts.PageDelay,
		Logger:    &logger,
	})
	if err != nil {
		return nil, err
	}
	machines, err := NewPaginator(hc, opts.BaseURL, PaginatorOptions{
		MaxPages: opts.MachinesMaxPages,
		Logger:   &logger,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		http:    hc,
		opts:    opts,
		sales:   sales,
		machine: machines,
		logger:  logger,
	}, nil
}

// Configured reports whether an API token is set
func (c *Client) Configured() bool {
	return c.http.HasToken()
}

// SalesPaginator returns the paginator used for sales listings
func (c *Client) SalesPaginator() *Paginator {
	return c.sales
}

// SalesQuery selects the sales to list
type SalesQuery struct {
	StartDate string
	EndDate   string
	PageSize  int
	// MaxPages overrides the configured sales page cap when > 0
	MaxPages int
}

// Values encodes the query parameters
func (q SalesQuery) Values(defaultPageSize int) url.Values {
	v := url.Values{}
	if q.StartDate != "" {
		v.Set("startDate", q.StartDate)
	}
	if q.EndDate != "" {
		v.Set("endDate", q.EndDate)
	}
	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	v.Set("pageSize", strconv.Itoa(size))
	return v
}

// WalkSales streams every sales page in the range to fn
func (c *Client) WalkSales(ctx context.Context, q SalesQuery, fn PageFunc) (int, error) {
	if q.MaxPages > 0 {
		return c.sales.WalkN(ctx, SalesPath, q.Values(c.opts.PageSize), q.MaxPages, fn)
	}
	return c.sales.Walk(ctx, SalesPath, q.Values(c.opts.PageSize), fn)
}

// ListSales collects raw sale records, stopping once limit records were
// gathered (limit <= 0 means no limit besides the page cap)
func (c *Client) ListSales(ctx context.Context, q SalesQuery, limit int) ([]json.RawMessage, error) {
	results := make([]json.RawMessage, 0)

	_, err := c.WalkSales(ctx, q, func(page *types.Page, _ int) error {
		for _, r := range page.Results {
			results = append(results, r)
			if limit > 0 && len(results) >= limit {
				return errLimitReached
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimitReached) {
		return nil, err
	}
	return results, nil
}

// ListMachines collects every machine (capped by MachinesMaxPages)
func (c *Client) ListMachines(ctx context.Context) ([]types.Machine, error) {
	machines := make([]types.Machine, 0)
	query := url.Values{}
	query.Set("pageSize", strconv.Itoa(c.opts.PageSize))

	_, err := c.machine.Walk(ctx, MachinesPath, query, func(page *types.Page, _ int) error {
		for _, raw := range page.Results {
			var m types.Machine
			if err := json.Unmarshal(raw, &m); err != nil {
				c.logger.Warn().Err(err).Msg("Skipping undecodable machine record")
				continue
			}
			m.Raw = raw
			machines = append(machines, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return machines, nil
}

// EnrichMachines looks up the device of every machine concurrently and sets
// IsEnabled. A failed lookup only affects its own machine, which falls back
// to disabled.
func (c *Client) EnrichMachines(ctx context.Context, machines []types.Machine) []types.Machine {
	enriched := make([]types.Machine, len(machines))
	copy(enriched, machines)

	sem := semaphore.NewWeighted(int64(c.opts.EnrichConcurrency))
	g, gctx := errgroup.WithContext(ctx)

	for i := range enriched {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				enriched[i].IsEnabled = false
				return nil
			}
			defer sem.Release(1)

			enabled, err := c.deviceEnabled(gctx, enriched[i].ID.String())
			if err != nil {
				c.logger.Warn().
					Err(err).
					Str("machine_id", enriched[i].ID.String()).
					Msg("Device lookup failed, defaulting to disabled")
				enriched[i].IsEnabled = false
				return nil
			}
			enriched[i].IsEnabled = enabled
			return nil
		})
	}

	// goroutines never return errors
	_ = g.Wait()
	return enriched
}

func (c *Client) deviceEnabled(ctx context.Context, machineID string) (bool, error) {
	if machineID == "" {
		return false, fmt.Errorf("machine has no id")
	}
	target, err := c.machine.Resolve(fmt.Sprintf(devicePath, url.PathEscape(machineID)), nil)
	if err != nil {
		return false, err
	}
	var device types.DeviceInfo
	if err := c.http.GetJSON(ctx, target, &device); err != nil {
		return false, err
	}
	enabled, ok := device.Resolve()
	if !ok {
		return false, fmt.Errorf("device response has no enabled flag")
	}
	return enabled, nil
}

// TestConnection fetches a single machine to check reachability and auth
func (c *Client) TestConnection(ctx context.Context) (int, error) {
	query := url.Values{}
	query.Set("pageSize", "1")
	target, err := c.machine.Resolve(MachinesPath, query)
	if err != nil {
		return 0, err
	}
	var page types.Page
	if err := c.http.GetJSON(ctx, target, &page); err != nil {
		return httpclient.StatusOf(err), err
	}
	return http.StatusOK, nil
}

// PassthroughResponse is an upstream response forwarded verbatim
type PassthroughResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// Passthrough forwards an authenticated GET to an arbitrary API path
func (c *Client) Passthrough(ctx context.Context, path, rawQuery string) (*PassthroughResponse, error) {
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid query string: %w", err)
	}
	if len(query) == 0 {
		query = nil
	}
	target, err := c.machine.Resolve(path, query)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Get(ctx, target)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}
	return &PassthroughResponse{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
