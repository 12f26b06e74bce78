package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// StorageQuality selects how aggressively the app fetches full-quality media.
type StorageQuality string

const (
	// QualityAuto fetches degraded results first and upgrades in the
	// background, network permitted.
	QualityAuto StorageQuality = "auto"

	// QualityLocal never touches the network; cloud-only assets stay
	// degraded until the user asks for an upgrade.
	QualityLocal StorageQuality = "local"
)

// Config holds all application configuration
type Config struct {
	Library  LibraryConfig  `mapstructure:"library"`
	Player   PlayerConfig   `mapstructure:"player"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Geocode  GeocodeConfig  `mapstructure:"geocode"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// LibraryConfig points at the backing media library
type LibraryConfig struct {
	Path    string         `mapstructure:"path"`    // Media directory
	Quality StorageQuality `mapstructure:"quality"` // "auto" or "local"
}

// PlayerConfig holds the external video player configuration
type PlayerConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// PipelineConfig tunes batching and large-library sampling
type PipelineConfig struct {
	BatchSize      int     `mapstructure:"batch_size"`
	SampleMin      int     `mapstructure:"sample_min"`      // Sampling threshold floor
	SampleMax      int     `mapstructure:"sample_max"`      // Sampling threshold ceiling
	SampleFraction float64 `mapstructure:"sample_fraction"` // Fraction of set size between floor and ceiling
}

// CacheConfig tunes the media cache and prefetch windows
type CacheConfig struct {
	KeepWindow       int `mapstructure:"keep_window"`       // Assets kept warm around the cursor
	PreloadAhead     int `mapstructure:"preload_ahead"`     // Eager preload depth
	PreloadWide      int `mapstructure:"preload_wide"`      // Wide scheduler pass depth
	VideoConcurrency int `mapstructure:"video_concurrency"` // Concurrent video acquisitions
	MetadataCap      int `mapstructure:"metadata_cap"`      // Metadata cache entry cap
	ExportCap        int `mapstructure:"export_cap"`        // Exported video file cap
	ProcessedSetCap  int `mapstructure:"processed_set_cap"` // Per-filter processed set cap
}

// GeocodeConfig configures the reverse-geocoding enrichment
type GeocodeConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoint    string        `mapstructure:"endpoint"`     // Nominatim-compatible base URL
	MaxRequests int           `mapstructure:"max_requests"` // Requests per window
	Window      time.Duration `mapstructure:"window"`       // Rolling rate-limit window
	CacheSize   int           `mapstructure:"cache_size"`   // Resolved place cache cap
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			Quality: QualityAuto,
		},
		Player: PlayerConfig{
			Command: "mpv",
		},
		Pipeline: PipelineConfig{
			BatchSize:      15,
			SampleMin:      2000,
			SampleMax:      5000,
			SampleFraction: 0.10,
		},
		Cache: CacheConfig{
			KeepWindow:       6,
			PreloadAhead:     2,
			PreloadWide:      8,
			VideoConcurrency: 2,
			MetadataCap:      500,
			ExportCap:        4,
			ProcessedSetCap:  20000,
		},
		Geocode: GeocodeConfig{
			Enabled:     true,
			Endpoint:    "https://nominatim.openstreetmap.org",
			MaxRequests: 45,
			Window:      time.Minute,
			CacheSize:   1000,
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "sweep", "sweep.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "sweep", "sweep.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "sweep")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "sweep")
	}
}

// DefaultDataPath returns the durable store directory for the current OS
func DefaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "sweep", "data")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "sweep", "data")
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("SWEEP")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set("library.path", cfg.Library.Path)
	viper.Set("library.quality", string(cfg.Library.Quality))
	viper.Set("player.command", cfg.Player.Command)
	viper.Set("player.args", cfg.Player.Args)
	viper.Set("pipeline.batch_size", cfg.Pipeline.BatchSize)
	viper.Set("pipeline.sample_min", cfg.Pipeline.SampleMin)
	viper.Set("pipeline.sample_max", cfg.Pipeline.SampleMax)
	viper.Set("pipeline.sample_fraction", cfg.Pipeline.SampleFraction)
	viper.Set("geocode.enabled", cfg.Geocode.Enabled)
	viper.Set("geocode.endpoint", cfg.Geocode.Endpoint)
	viper.Set("logging.file", cfg.Logging.File)
	viper.Set("logging.level", cfg.Logging.Level)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsConfigured returns true if a library path is set
func (c *Config) IsConfigured() bool {
	return c.Library.Path != ""
}

// NetworkAllowed reports whether background quality upgrades may use the
// network under the active storage-quality mode.
func (c *Config) NetworkAllowed() bool {
	return c.Library.Quality != QualityLocal
}
