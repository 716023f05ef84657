package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shapeeat/sales-service/internal/database"
	"github.com/shapeeat/sales-service/internal/sweepers"
)

var (
	runsLimit int
	runsSweep bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.Migrate(cmd.Context(), database.Pool()); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info().Msg("Schema up to date")
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent sync runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs")
	runsCmd.Flags().BoolVar(&runsSweep, "sweep", false, "Fail stale runs and prune old ones before listing")
}

func runRuns(cmd *cobra.Command, args []string) error {
	store := openStore()

	if runsSweep {
		sweeper := sweepers.NewSyncRunSweeper(store, logger, sweepers.Config{
			StaleAfter: cfg.Sync.StaleAfter,
			Retention:  cfg.Sync.RunRetention,
		})
		res, err := sweeper.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		logger.Info().Int("failed", res.Failed).Int("pruned", res.Pruned).Msg("Sweep done")
	}

	runs, err := store.ListSyncRuns(cmd.Context(), runsLimit)
	if err != nil {
		return fmt.Errorf("failed to list sync runs: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tMODE\tSTATUS\tSTARTED\tPAGES\tLINE ITEMS\tORDERS\tERROR")
	fmt.Fprintln(w, "------\t----\t------\t-------\t-----\t----------\t------\t-----")
	for _, r := range runs {
		errMsg := "-"
		if r.Error != nil {
			errMsg = *r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.Mode, r.Status, r.StartedAt.Format(time.RFC3339), r.Pages, r.LineItems, r.OrderSummaries, errMsg)
	}
	return w.Flush()
}
