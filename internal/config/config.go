package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server    ServerConfig    `toml:"server"`     // HTTP server settings
	Logging   LoggingConfig   `toml:"logging"`    // Application logging settings
	Storage   StorageConfig   `toml:"storage"`    // Data persistence settings
	Ingest    IngestConfig    `toml:"ingest"`     // Public API poller settings
	Feeders   FeedersConfig   `toml:"feeders"`    // Feeder station settings
	Providers ProvidersConfig `toml:"providers"`  // External route data providers
	Routes    RoutesConfig    `toml:"routes"`     // Route resolution settings
	RateLimit RateLimitConfig `toml:"rate_limit"` // Provider backoff settings
	Airports  AirportsConfig  `toml:"airports"`   // Airport database settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // HTTP port for the server
	Host             string `toml:"host"`                  // Host address to bind to
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Keep-alive idle timeout
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"` // Path to the SQLite database file
}

// IngestConfig contains the public telemetry API poller configuration
type IngestConfig struct {
	Enabled           bool    `toml:"enabled"`                // Enable the public API poller
	SourceURL         string  `toml:"source_url"`             // Public telemetry API URL (state vectors endpoint)
	FetchIntervalSecs int     `toml:"fetch_interval_seconds"` // How often to poll for new state vectors
	TimeoutSecs       int     `toml:"timeout_seconds"`        // HTTP timeout for poller requests
	SourcePriority    int     `toml:"source_priority"`        // Trust rank for polled samples (lower = more trusted)
	BBoxLamin         float64 `toml:"bbox_lamin"`             // Bounding box minimum latitude
	BBoxLomin         float64 `toml:"bbox_lomin"`             // Bounding box minimum longitude
	BBoxLamax         float64 `toml:"bbox_lamax"`             // Bounding box maximum latitude
	BBoxLomax         float64 `toml:"bbox_lomax"`             // Bounding box maximum longitude
}

// FeedersConfig contains settings for self-registered feeder stations
type FeedersConfig struct {
	DefaultPriority int `toml:"default_priority"` // Trust rank assigned to new feeders unless overridden
}

// ProvidersConfig groups external route data provider settings
type ProvidersConfig struct {
	Historical HistoricalProviderConfig `toml:"historical"`
	Realtime   RealtimeProviderConfig   `toml:"realtime"`
}

// HistoricalProviderConfig configures the low-cost historical flight provider
type HistoricalProviderConfig struct {
	Enabled     bool   `toml:"enabled"`
	BaseURL     string `toml:"base_url"`        // e.g. https://opensky-network.org/api
	TimeoutSecs int    `toml:"timeout_seconds"` // Short timeout; failures fall through to the next step
}

// RealtimeProviderConfig configures the costly real-time flight provider
type RealtimeProviderConfig struct {
	Enabled     bool   `toml:"enabled"`
	BaseURL     string `toml:"base_url"`
	APIKey      string `toml:"api_key"`
	TimeoutSecs int    `toml:"timeout_seconds"`
}

// RoutesConfig contains route resolution and backfill settings
type RoutesConfig struct {
	CompleteTTLHours         int     `toml:"complete_ttl_hours"`             // Cache validity for routes with a known arrival
	InferredTTLMinutes       int     `toml:"inferred_ttl_minutes"`           // Cache validity for incomplete inference results
	IncompleteTTLHours       int     `toml:"incomplete_ttl_hours"`           // Cache validity for other incomplete routes
	InferenceSearchRadiusKm  float64 `toml:"inference_search_radius_km"`     // Airport search radius around first/last positions
	BackfillEnabled          bool    `toml:"backfill_enabled"`               // Enable the background route backfill job
	BackfillIntervalSecs     int     `toml:"backfill_interval_seconds"`      // How often the backfill job scans for unresolved routes
	BackfillWorkers          int     `toml:"backfill_workers"`               // Bounded concurrency for backfill resolutions
	BackfillActiveWindowSecs int     `toml:"backfill_active_window_seconds"` // Only backfill aircraft seen within this window
}

// RateLimitConfig contains provider backoff settings
type RateLimitConfig struct {
	BaseBackoffSecs int `toml:"base_backoff_seconds"` // First backoff step when a provider fails without retry-after
	MaxBackoffSecs  int `toml:"max_backoff_seconds"`  // Backoff ceiling
}

// AirportsConfig contains airport/runway database settings (OurAirports format)
type AirportsConfig struct {
	AirportsCSVPath string `toml:"airports_csv_path"` // Path to airports.csv
	RunwaysCSVPath  string `toml:"runways_csv_path"`  // Path to runways.csv
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// LoadWithFallback loads configuration from the given path, or searches
// the conventional locations when the path is empty
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}

	candidates := []string{
		filepath.Join("configs", "config.toml"),
		"config.toml",
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}
	}

	return nil, fmt.Errorf("no config file found in %v", candidates)
}

// applyDefaults fills in zero-valued settings with sensible defaults
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.ReadTimeoutSecs == 0 {
		c.Server.ReadTimeoutSecs = 30
	}
	if c.Server.WriteTimeoutSecs == 0 {
		c.Server.WriteTimeoutSecs = 30
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = 60
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Ingest.FetchIntervalSecs == 0 {
		c.Ingest.FetchIntervalSecs = 10
	}
	if c.Ingest.TimeoutSecs == 0 {
		c.Ingest.TimeoutSecs = 10
	}
	if c.Ingest.SourcePriority == 0 {
		c.Ingest.SourcePriority = 30
	}
	if c.Feeders.DefaultPriority == 0 {
		c.Feeders.DefaultPriority = 20
	}
	if c.Providers.Historical.TimeoutSecs == 0 {
		c.Providers.Historical.TimeoutSecs = 5
	}
	if c.Providers.Realtime.TimeoutSecs == 0 {
		c.Providers.Realtime.TimeoutSecs = 15
	}
	if c.Routes.CompleteTTLHours == 0 {
		c.Routes.CompleteTTLHours = 24
	}
	if c.Routes.InferredTTLMinutes == 0 {
		c.Routes.InferredTTLMinutes = 30
	}
	if c.Routes.IncompleteTTLHours == 0 {
		c.Routes.IncompleteTTLHours = 2
	}
	if c.Routes.InferenceSearchRadiusKm == 0 {
		c.Routes.InferenceSearchRadiusKm = 75
	}
	if c.Routes.BackfillIntervalSecs == 0 {
		c.Routes.BackfillIntervalSecs = 300
	}
	if c.Routes.BackfillWorkers == 0 {
		c.Routes.BackfillWorkers = 4
	}
	if c.Routes.BackfillActiveWindowSecs == 0 {
		c.Routes.BackfillActiveWindowSecs = 3600
	}
	if c.RateLimit.BaseBackoffSecs == 0 {
		c.RateLimit.BaseBackoffSecs = 300
	}
	if c.RateLimit.MaxBackoffSecs == 0 {
		c.RateLimit.MaxBackoffSecs = 3600
	}
}

// Validate checks the configuration for missing or inconsistent values
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required")
	}
	if c.Ingest.Enabled && c.Ingest.SourceURL == "" {
		return fmt.Errorf("ingest.source_url is required when the poller is enabled")
	}
	if c.Providers.Historical.Enabled && c.Providers.Historical.BaseURL == "" {
		return fmt.Errorf("providers.historical.base_url is required when enabled")
	}
	if c.Providers.Realtime.Enabled {
		if c.Providers.Realtime.BaseURL == "" {
			return fmt.Errorf("providers.realtime.base_url is required when enabled")
		}
		if c.Providers.Realtime.APIKey == "" {
			return fmt.Errorf("providers.realtime.api_key is required when enabled")
		}
	}
	if c.RateLimit.BaseBackoffSecs > c.RateLimit.MaxBackoffSecs {
		return fmt.Errorf("rate_limit.base_backoff_seconds exceeds max_backoff_seconds")
	}
	return nil
}
