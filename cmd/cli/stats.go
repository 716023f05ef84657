package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shapeeat/sales-service/internal/analytics"
	"github.com/shapeeat/sales-service/internal/types"
)

// statsFlags are shared by every statistics command
type statsFlags struct {
	period              string
	start               string
	end                 string
	venue               string
	category            string
	status              string
	source              string
	excludePlaceholders bool
	limit               int
	asJSON              bool
}

var (
	statsOpts  statsFlags
	topBottom  bool
	topProduct bool
	exportOut  string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show period totals and growth",
	Long: `Compute revenue, orders, items and active venues for a period and compare
them with the period of equal length right before it.`,
	Example: `  sales-service stats
  sales-service stats --period 7days --source lines
  sales-service stats --period custom --start 2024-01-01 --end 2024-01-31 --json`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Show venue or product leaderboards",
	Example: `  sales-service top
  sales-service top --bottom -n 3
  sales-service top --products -n 20 --exclude-placeholders`,
	Args: cobra.NoArgs,
	RunE: runTop,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export period statistics to an Excel workbook",
	Example: `  sales-service export --period 30days
  sales-service export --period custom --start 2024-01-01 --end 2024-01-31 -o january.xlsx`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	for _, cmd := range []*cobra.Command{statsCmd, topCmd, exportCmd} {
		rootCmd.AddCommand(cmd)

		f := cmd.Flags()
		f.StringVar(&statsOpts.period, "period", string(analytics.DefaultPeriod), "Period (today, yesterday, 7days, 30days, custom)")
		f.StringVar(&statsOpts.start, "start", "", "Custom start date (format: YYYY-MM-DD)")
		f.StringVar(&statsOpts.end, "end", "", "Custom end date, inclusive (format: YYYY-MM-DD)")
		f.StringVar(&statsOpts.venue, "venue", "", "Filter by venue ID")
		f.StringVar(&statsOpts.category, "category", "", "Filter by category")
		f.StringVar(&statsOpts.status, "status", "", "Filter by transaction status")
		f.StringVar(&statsOpts.source, "source", string(analytics.SourceLines), "Aggregate line items or order summaries (lines, orders)")
		f.BoolVar(&statsOpts.excludePlaceholders, "exclude-placeholders", false, "Skip unknown products and categories")
	}

	for _, cmd := range []*cobra.Command{statsCmd, topCmd} {
		cmd.Flags().BoolVar(&statsOpts.asJSON, "json", false, "Print JSON instead of a table")
	}

	topCmd.Flags().IntVarP(&statsOpts.limit, "limit", "n", 0, "Number of entries, 0 uses the default")
	topCmd.Flags().BoolVar(&topBottom, "bottom", false, "Rank venues from the lowest revenue")
	topCmd.Flags().BoolVar(&topProduct, "products", false, "Rank products instead of venues")

	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Output file (default stats-<period>-<date>.xlsx)")
}

func (f statsFlags) request() (analytics.StatsRequest, error) {
	source, err := analytics.ParseSource(f.source)
	if err != nil {
		return analytics.StatsRequest{}, err
	}
	status := types.Status(f.status)
	if status != "" && !status.IsValid() {
		return analytics.StatsRequest{}, fmt.Errorf("invalid status %q", f.status)
	}
	return analytics.StatsRequest{
		Period:              f.period,
		StartDate:           f.start,
		EndDate:             f.end,
		VenueID:             f.venue,
		Category:            f.category,
		Status:              status,
		Source:              source,
		ExcludePlaceholders: f.excludePlaceholders,
		Limit:               f.limit,
	}, nil
}

func newStatsService() *analytics.Service {
	return analytics.NewService(openStore(), analytics.WithServiceLogger(*logger))
}

func runStats(cmd *cobra.Command, args []string) error {
	req, err := statsOpts.request()
	if err != nil {
		return err
	}

	stats, err := newStatsService().PeriodStats(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}
	if statsOpts.asJSON {
		return printJSON(stats)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RANGE\tREVENUE\tORDERS\tITEMS\tVENUES")
	fmt.Fprintln(w, "-----\t-------\t------\t-----\t------")
	for _, a := range []analytics.Aggregate{stats.Current, stats.Previous} {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
			formatRange(a.Range), a.Revenue.StringFixed(2), a.Orders, a.Items, a.ActiveVenues)
	}
	fmt.Fprintf(w, "GROWTH\t%.2f%%\t%.2f%%\t\t\n", stats.RevenueGrowth, stats.OrdersGrowth)
	return w.Flush()
}

func runTop(cmd *cobra.Command, args []string) error {
	req, err := statsOpts.request()
	if err != nil {
		return err
	}
	svc := newStatsService()

	if topProduct {
		products, err := svc.ProductRanking(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("failed to rank products: %w", err)
		}
		if statsOpts.asJSON {
			return printJSON(products)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "#\tPRODUCT\tCATEGORY\tQUANTITY\tREVENUE\tORDERS")
		fmt.Fprintln(w, "-\t-------\t--------\t--------\t-------\t------")
		for i, p := range products {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%d\n", i+1, p.Name, p.Category, p.Quantity, p.Revenue.StringFixed(2), p.Orders)
		}
		return w.Flush()
	}

	venues, err := svc.VenueRanking(cmd.Context(), req, topBottom)
	if err != nil {
		return fmt.Errorf("failed to rank venues: %w", err)
	}
	if statsOpts.asJSON {
		return printJSON(venues)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tVENUE\tREVENUE\tORDERS\tPREVIOUS\tGROWTH")
	fmt.Fprintln(w, "-\t-----\t-------\t------\t--------\t------")
	for i, v := range venues {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%.2f%%\n",
			i+1, v.VenueName, v.Revenue.StringFixed(2), v.Orders, v.PreviousRevenue.StringFixed(2), v.Growth)
	}
	return w.Flush()
}

func runExport(cmd *cobra.Command, args []string) error {
	req, err := statsOpts.request()
	if err != nil {
		return err
	}

	report, err := newStatsService().Report(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	path := exportOut
	if path == "" {
		path = fmt.Sprintf("stats-%s-%s.xlsx", report.Period, report.GeneratedAt.Format(analytics.DateLayout))
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := analytics.ExportXLSX(f, report); err != nil {
		f.Close()
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	logger.Info().Str("file", path).Str("period", report.Period).Msg("Export written")
	return nil
}

// formatRange prints a half-open range as its inclusive first and last day
func formatRange(r analytics.Range) string {
	last := r.End.Add(-time.Nanosecond)
	return r.Start.Format(analytics.DateLayout) + " .. " + last.Format(analytics.DateLayout)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
