package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shapeeat/sales-service/internal/storage"
	"github.com/shapeeat/sales-service/internal/types"
)

// Source selects which persisted view the aggregates are computed from
type Source string

const (
	// SourceOrders aggregates order summaries, one entry per sale
	SourceOrders Source = "orders"
	// SourceLines aggregates line items, one entry per product sold
	SourceLines Source = "lines"
)

// ErrInvalidSource is returned for a source outside lines and orders
var ErrInvalidSource = errors.New("invalid source")

// ParseSource resolves a source token. Empty selects SourceLines so a
// partially refunded sale still counts its kept lines.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case "", SourceLines:
		return SourceLines, nil
	case SourceOrders:
		return SourceOrders, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, s)
	}
}

// StatsRequest is the input of every Service method
type StatsRequest struct {
	Period              string
	StartDate           string
	EndDate             string
	VenueID             string
	Category            string
	Status              types.Status
	Source              Source
	ExcludePlaceholders bool
	Limit               int
}

// Report bundles every aggregate of one period
type Report struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	Period      string         `json:"period"`
	Stats       PeriodStats    `json:"stats"`
	TopVenues   []VenueStat    `json:"topVenues"`
	Bottom      []VenueStat    `json:"bottomVenues"`
	Products    []ProductStat  `json:"products"`
	Categories  []CategoryStat `json:"categories"`
	Daily       []DailyPoint   `json:"daily"`
}

// Service computes statistics from persisted rows
type Service struct {
	store  storage.Store
	now    func() time.Time
	logger zerolog.Logger
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithServiceClock sets the clock rolling periods are resolved against
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithServiceLogger sets the logger
func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a stats service over store
func NewService(store storage.Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		now:    time.Now,
		logger: log.With().Str("component", "analytics").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// query resolves the period of req
func (s *Service) query(req StatsRequest) (Query, error) {
	period := req.Period
	if period == "" {
		period = DefaultPeriod
	}
	rng, err := ResolvePeriod(period, s.now(), req.StartDate, req.EndDate)
	if err != nil {
		return Query{}, err
	}
	return Query{
		Range:               rng,
		VenueID:             req.VenueID,
		Category:            req.Category,
		Status:              req.Status,
		ExcludePlaceholders: req.ExcludePlaceholders,
	}, nil
}

// load reads the entries of src between from and to
func (s *Service) load(ctx context.Context, src Source, q Query, from, to time.Time) ([]Entry, error) {
	filter := storage.Filter{Start: from, End: to, VenueID: q.VenueID}

	switch src {
	case SourceLines, "":
		items, err := s.store.QueryLineItems(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to load line items: %w", err)
		}
		return LineEntries(items), nil
	case SourceOrders:
		summaries, err := s.store.QueryOrderSummaries(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to load order summaries: %w", err)
		}
		return SummaryEntries(summaries), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, src)
	}
}

// PeriodStats returns the current and previous aggregates with growth
func (s *Service) PeriodStats(ctx context.Context, req StatsRequest) (PeriodStats, error) {
	q, err := s.query(req)
	if err != nil {
		return PeriodStats{}, err
	}
	prev := q.Range.Previous()
	entries, err := s.load(ctx, req.Source, q, prev.Start, q.Range.End)
	if err != nil {
		return PeriodStats{}, err
	}

	stats := Compute(entries, q)
	s.logger.Debug().
		Str("source", string(req.Source)).
		Time("start", q.Range.Start).
		Time("end", q.Range.End).
		Int("entries", len(entries)).
		Str("revenue", stats.Current.Revenue.StringFixed(2)).
		Msg("Computed period stats")
	return stats, nil
}

// VenueRanking returns the top or bottom venues of the period
func (s *Service) VenueRanking(ctx context.Context, req StatsRequest, bottom bool) ([]VenueStat, error) {
	stats, err := s.PeriodStats(ctx, req)
	if err != nil {
		return nil, err
	}
	if bottom {
		return BottomVenues(stats.Current.Venues, req.Limit), nil
	}
	return TopVenues(stats.Current.Venues, req.Limit), nil
}

// lineEntries loads the line entries of the period. Product and category
// breakdowns always read line items.
func (s *Service) lineEntries(ctx context.Context, req StatsRequest) ([]Entry, Query, error) {
	q, err := s.query(req)
	if err != nil {
		return nil, Query{}, err
	}
	entries, err := s.load(ctx, SourceLines, q, q.Range.Start, q.Range.End)
	if err != nil {
		return nil, Query{}, err
	}
	return entries, q, nil
}

// ProductRanking returns the best selling products of the period
func (s *Service) ProductRanking(ctx context.Context, req StatsRequest) ([]ProductStat, error) {
	entries, q, err := s.lineEntries(ctx, req)
	if err != nil {
		return nil, err
	}
	return TopProducts(ProductStats(entries, q), req.Limit), nil
}

// Categories returns the revenue per category of the period
func (s *Service) Categories(ctx context.Context, req StatsRequest) ([]CategoryStat, error) {
	entries, q, err := s.lineEntries(ctx, req)
	if err != nil {
		return nil, err
	}
	return CategoryBreakdown(entries, q), nil
}

// Daily returns the zero-filled revenue per day of the period
func (s *Service) Daily(ctx context.Context, req StatsRequest) ([]DailyPoint, error) {
	q, err := s.query(req)
	if err != nil {
		return nil, err
	}
	entries, err := s.load(ctx, req.Source, q, q.Range.Start, q.Range.End)
	if err != nil {
		return nil, err
	}
	return DailySeries(entries, q), nil
}

// Report computes every aggregate of the period
func (s *Service) Report(ctx context.Context, req StatsRequest) (*Report, error) {
	stats, err := s.PeriodStats(ctx, req)
	if err != nil {
		return nil, err
	}
	lines, q, err := s.lineEntries(ctx, req)
	if err != nil {
		return nil, err
	}

	dailySource := lines
	if req.Source == SourceOrders {
		dailySource, err = s.load(ctx, req.Source, q, q.Range.Start, q.Range.End)
		if err != nil {
			return nil, err
		}
	}

	period := req.Period
	if period == "" {
		period = DefaultPeriod
	}
	return &Report{
		GeneratedAt: s.now().UTC(),
		Period:      period,
		Stats:       stats,
		TopVenues:   TopVenues(stats.Current.Venues, DefaultVenueLimit),
		Bottom:      BottomVenues(stats.Current.Venues, DefaultVenueLimit),
		Products:    TopProducts(ProductStats(lines, q), req.Limit),
		Categories:  CategoryBreakdown(lines, q),
		Daily:       DailySeries(dailySource, q),
	}, nil
}
