package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shapeeat/sales-service/internal/vendlive"
)

var machinesJSON bool

var machinesCmd = &cobra.Command{
	Use:   "machines",
	Short: "List VendLive machines with their enabled flag",
	Args:  cobra.NoArgs,
	RunE:  runMachines,
}

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Check that the VendLive API is reachable with the configured token",
	Args:  cobra.NoArgs,
	RunE:  runTestConnection,
}

func init() {
	rootCmd.AddCommand(machinesCmd)
	rootCmd.AddCommand(testConnectionCmd)

	machinesCmd.Flags().BoolVar(&machinesJSON, "json", false, "Print JSON instead of a table")
}

func proxyClient() (*vendlive.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required but not loaded")
	}
	client, err := vendlive.NewFromConfig(cfg, vendlive.ProfileProxy, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create VendLive client: %w", err)
	}
	if !client.Configured() {
		return nil, fmt.Errorf("VENDLIVE_API_TOKEN not set")
	}
	return client, nil
}

func runMachines(cmd *cobra.Command, args []string) error {
	client, err := proxyClient()
	if err != nil {
		return err
	}

	machines, err := client.ListMachines(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list machines: %w", err)
	}
	machines = client.EnrichMachines(cmd.Context(), machines)

	if machinesJSON {
		return printJSON(machines)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tENABLED")
	fmt.Fprintln(w, "--\t-------")
	for _, m := range machines {
		fmt.Fprintf(w, "%s\t%t\n", m.ID, m.IsEnabled)
	}
	fmt.Fprintf(w, "\n%d machines\n", len(machines))
	return w.Flush()
}

func runTestConnection(cmd *cobra.Command, args []string) error {
	client, err := proxyClient()
	if err != nil {
		return err
	}

	status, err := client.TestConnection(cmd.Context())
	if err != nil {
		logger.Error().Int("status", status).Err(err).Msg("VendLive connection failed")
		return err
	}
	logger.Info().Int("status", status).Msg("VendLive connection OK")
	return nil
}
