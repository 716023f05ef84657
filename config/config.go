package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	VendLive    VendLiveConfig  `mapstructure:"vendlive"`
	Sync        SyncConfig      `mapstructure:"sync"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	InternalAPIKey string        `mapstructure:"internal_api_key"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// VendLiveConfig holds the upstream vendor API configuration
type VendLiveConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIToken          string        `mapstructure:"api_token"`
	Timeout           time.Duration `mapstructure:"timeout"`
	PageSize          int           `mapstructure:"page_size"`
	SalesMaxPages     int           `mapstructure:"sales_max_pages"`
	MachinesMaxPages  int           `mapstructure:"machines_max_pages"`
	EnrichConcurrency int           `mapstructure:"enrich_concurrency"`
}

// SyncConfig holds batch sync configuration
type SyncConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	BatchPause   time.Duration `mapstructure:"batch_pause"`
	PageDelay    time.Duration `mapstructure:"page_delay"`
	MaxPages     int           `mapstructure:"max_pages"`
	Interval     time.Duration `mapstructure:"interval"`
	LookbackDays int           `mapstructure:"lookback_days"`
	// Sync run history maintenance
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	RunRetention  time.Duration `mapstructure:"run_retention"`
}

// RateLimitConfig holds upstream rate limiting and retry configuration
type RateLimitConfig struct {
	RequestsPerSecond int    `mapstructure:"requests_per_second"`
	MaxRetries        int    `mapstructure:"max_retries"`
	InitialBackoffMs  int    `mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int    `mapstructure:"max_backoff_ms"`
	Strategy          string `mapstructure:"strategy"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// .env is optional
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("SALES_SERVICE")

	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// loadEnvFile loads the first .env file found. Variables already present in
// the process environment win.
func loadEnvFile() error {
	for _, path := range []string{".env", "./config/.env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return godotenv.Load(path)
	}
	return fmt.Errorf("no .env file found")
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("environment", "NODE_ENV", "ENVIRONMENT")

	v.BindEnv("database.url", "DATABASE_URL", "SUPABASE_DB_URL")

	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.internal_api_key", "INTERNAL_API_KEY")

	v.BindEnv("vendlive.base_url", "VENDLIVE_API_URL")
	v.BindEnv("vendlive.api_token", "VENDLIVE_API_TOKEN")

	v.BindEnv("logging.level", "LOG_LEVEL")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.port", 3001)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})

	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	v.SetDefault("vendlive.base_url", "https://vendlive.com")
	v.SetDefault("vendlive.timeout", 30*time.Second)
	v.SetDefault("vendlive.page_size", 100)
	v.SetDefault("vendlive.sales_max_pages", 100)
	v.SetDefault("vendlive.machines_max_pages", 50)
	v.SetDefault("vendlive.enrich_concurrency", 10)

	v.SetDefault("sync.batch_size", 200)
	v.SetDefault("sync.batch_pause", 100*time.Millisecond)
	v.SetDefault("sync.page_delay", 1*time.Second)
	v.SetDefault("sync.max_pages", 0)
	v.SetDefault("sync.interval", 0)
	v.SetDefault("sync.lookback_days", 2)
	v.SetDefault("sync.sweep_interval", 1*time.Hour)
	v.SetDefault("sync.stale_after", 12*time.Hour)
	v.SetDefault("sync.run_retention", 90*24*time.Hour)

	v.SetDefault("rate_limit.requests_per_second", 5)
	v.SetDefault("rate_limit.max_retries", 2)
	v.SetDefault("rate_limit.initial_backoff_ms", 1000)
	v.SetDefault("rate_limit.max_backoff_ms", 30000)
	v.SetDefault("rate_limit.strategy", "linear")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// GetDatabaseURL returns the database URL from config or environment
func GetDatabaseURL() string {
	if cfg := Get(); cfg != nil && cfg.Database.URL != "" {
		return cfg.Database.URL
	}
	return os.Getenv("DATABASE_URL")
}
