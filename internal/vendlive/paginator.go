package vendlive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	httpclient "github.com/shapeeat/sales-service/internal/http"
	"github.com/shapeeat/sales-service/internal/http/ratelimit"
	"github.com/shapeeat/sales-service/internal/types"
)

// HardPageCeiling bounds "unbounded" pagination so a cursor loop upstream
// can never spin forever
const HardPageCeiling = 10000

// PageFunc receives each non-empty page in order. Returning an error stops
// the walk and is propagated.
type PageFunc func(page *types.Page, pageNumber int) error

// Paginator walks a cursor-paginated VendLive listing endpoint
type Paginator struct {
	client    *httpclient.Client
	baseURL   *url.URL
	maxPages  int
	pageDelay time.Duration
	logger    zerolog.Logger
}

// PaginatorOptions configures a Paginator
type PaginatorOptions struct {
	// MaxPages caps the number of fetched pages; <= 0 means HardPageCeiling
	MaxPages int
	// PageDelay is slept between two successive page fetches
	PageDelay time.Duration
	Logger    *zerolog.Logger
}

// NewPaginator creates a paginator rooted at baseURL
func NewPaginator(client *httpclient.Client, baseURL string, opts PaginatorOptions) (*Paginator, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid VendLive base URL %q: %w", baseURL, err)
	}
	p := &Paginator{
		client:    client,
		baseURL:   base,
		maxPages:  opts.MaxPages,
		pageDelay: opts.PageDelay,
		logger:    zerolog.Nop(),
	}
	if opts.Logger != nil {
		p.logger = *opts.Logger
	}
	return p, nil
}

// MaxPages returns the effective page cap
func (p *Paginator) MaxPages() int {
	if p.maxPages <= 0 || p.maxPages > HardPageCeiling {
		return HardPageCeiling
	}
	return p.maxPages
}

// Resolve builds an absolute URL for an API path or a "next" cursor
func (p *Paginator) Resolve(ref string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimLeft(ref, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid URL reference %q: %w", ref, err)
	}
	if u.IsAbs() {
		// the token is attached to every request, never follow another host
		if u.Host != p.baseURL.Host {
			return "", fmt.Errorf("refusing to follow %q outside %s", ref, p.baseURL.Host)
		}
		if query != nil {
			u.RawQuery = query.Encode()
		}
		return u.String(), nil
	}
	resolved := p.baseURL.ResolveReference(u)
	if query != nil {
		resolved.RawQuery = query.Encode()
	}
	return resolved.String(), nil
}

// Walk fetches pages starting at path until the upstream reports no next
// page, a page comes back empty, or the page cap is reached. Any failed
// page aborts the walk. Returns the number of pages fetched.
func (p *Paginator) Walk(ctx context.Context, path string, query url.Values, fn PageFunc) (int, error) {
	return p.WalkN(ctx, path, query, p.MaxPages(), fn)
}

// WalkN is Walk with an explicit page cap; maxPages <= 0 means
// HardPageCeiling.
func (p *Paginator) WalkN(ctx context.Context, path string, query url.Values, maxPages int, fn PageFunc) (int, error) {
	next, err := p.Resolve(path, query)
	if err != nil {
		return 0, err
	}

	if maxPages <= 0 || maxPages > HardPageCeiling {
		maxPages = HardPageCeiling
	}
	fetched := 0

	for next != "" {
		if err := ctx.Err(); err != nil {
			return fetched, err
		}

		var page types.Page
		if err := p.client.GetJSON(ctx, next, &page); err != nil {
			return fetched, fmt.Errorf("failed to fetch page %d: %w", fetched+1, err)
		}
		fetched++

		p.logger.Debug().
			Int("page", fetched).
			Int("results", len(page.Results)).
			Int("count", page.Count).
			Msg("Fetched page")

		if len(page.Results) == 0 {
			break
		}

		if err := fn(&page, fetched); err != nil {
			return fetched, err
		}

		if !page.HasNext() {
			break
		}
		if fetched >= maxPages {
			p.logger.Warn().Int("max_pages", maxPages).Msg("Page cap reached, stopping pagination")
			break
		}

		next, err = p.Resolve(*page.Next, nil)
		if err != nil {
			return fetched, err
		}

		if p.pageDelay > 0 {
			if err := ratelimit.Sleep(ctx, p.pageDelay); err != nil {
				return fetched, err
			}
		}
	}

	return fetched, nil
}

// DecodeSales decodes the raw results of a sales page. Records that cannot
// be decoded are returned as errors alongside the decoded ones; they never
// abort the page.
func DecodeSales(results []json.RawMessage) ([]types.RawSale, []error) {
	sales := make([]types.RawSale, 0, len(results))
	var errs []error
	for i, raw := range results {
		var sale types.RawSale
		if err := json.Unmarshal(raw, &sale); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		sales = append(sales, sale)
	}
	return sales, errs
}
