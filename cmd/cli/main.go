package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shapeeat/sales-service/config"
	"github.com/shapeeat/sales-service/internal/database"
	"github.com/shapeeat/sales-service/internal/storage"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sales-service",
	Short: "Sales Service CLI - VendLive sales sync and statistics",
	Long: `A CLI tool for syncing VendLive vending sales into the Shape Eat database
and reading the statistics the dashboard shows: period totals, venue and
product leaderboards, category breakdowns and Excel exports.`,
	PersistentPreRunE: persistentPreRun,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Commands are cancelled on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		// Config is optional for some commands, don't fail here
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
}

// persistentPreRun runs before each command and initializes dependencies
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	logger = initLogger()

	if needsDatabase(cmd) {
		if cfg == nil {
			return fmt.Errorf("config required for %s command but not loaded", cmd.Name())
		}
		if err := initDatabase(cmd.Context()); err != nil {
			return fmt.Errorf("database initialization failed: %w", err)
		}
		logger.Debug().Msg("Database connected")
	}

	return nil
}

// needsDatabase reports whether cmd reads or writes persisted rows. A dry-run
// sync works on an in-memory store instead.
func needsDatabase(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "stats", "top", "export", "runs", "migrate":
		return true
	case "sync":
		return !syncDryRun
	}
	return false
}

func initLogger() *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if cfg != nil && cfg.Logging.Level != "" {
		if parsedLevel, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			level = parsedLevel
		}
	}

	// CLI output goes to stderr so stdout stays usable for tables and JSON
	var output io.Writer
	if cfg != nil && cfg.Logging.Format == "json" {
		output = os.Stderr
	} else {
		noColor := false
		if cfg != nil {
			noColor = cfg.Logging.NoColor
		}
		output = zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor}
	}

	log := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &log
}

func initDatabase(ctx context.Context) error {
	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	dbCfg := cfg.Database
	dbCfg.URL = dbURL
	if err := database.ConnectConfig(ctx, dbCfg); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

// openStore returns the store commands read and write through
func openStore() storage.Store {
	if pool := database.Pool(); pool != nil {
		return database.NewPostgresStore(pool)
	}
	return storage.NewMemoryStore()
}

func main() {
	err := Execute()
	database.Close()
	if err != nil {
		os.Exit(1)
	}
}
