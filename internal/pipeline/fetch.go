package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/shapeeat/sales-service/internal/types"
	"github.com/shapeeat/sales-service/internal/vendlive"
)

// SalesSource streams upstream sales pages. Implemented by *vendlive.Client.
type SalesSource interface {
	WalkSales(ctx context.Context, q vendlive.SalesQuery, fn vendlive.PageFunc) (int, error)
}

// FetchResult represents one decoded sales page
type FetchResult struct {
	Page        int
	Sales       []types.RawSale
	Undecodable int
}

// FetchPhase walks the sales listing and hands every decoded page to fn.
// Records that cannot be decoded are logged and counted, never fatal.
// Returns the number of pages fetched.
func FetchPhase(ctx context.Context, source SalesSource, q vendlive.SalesQuery, logger zerolog.Logger, fn func(*FetchResult) error) (int, error) {
	pages, err := source.WalkSales(ctx, q, func(page *types.Page, pageNumber int) error {
		pagesFetched.Inc()

		sales, errs := vendlive.DecodeSales(page.Results)
		for _, decodeErr := range errs {
			logger.Warn().Err(decodeErr).Int("page", pageNumber).Msg("Skipping undecodable sale record")
		}
		if len(errs) > 0 {
			recordsSkipped.WithLabelValues("undecodable").Add(float64(len(errs)))
		}

		logger.Debug().
			Int("page", pageNumber).
			Int("sales", len(sales)).
			Msg("Fetched sales page")

		return fn(&FetchResult{
			Page:        pageNumber,
			Sales:       sales,
			Undecodable: len(errs),
		})
	})
	return pages, err
}
