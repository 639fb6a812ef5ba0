// Package config handles configuration loading for Barb.
// It supports YAML config files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/seenimoa/barb/internal/market"
	"github.com/seenimoa/barb/pkg/models"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "BARB"

// Config represents the complete application configuration.
type Config struct {
	Data        DataConfig          `mapstructure:"data"        yaml:"data"`
	Query       QueryConfig         `mapstructure:"query"       yaml:"query"`
	Backtest    BacktestConfig      `mapstructure:"backtest"    yaml:"backtest"`
	API         APIConfig           `mapstructure:"api"         yaml:"api"`
	Instruments []market.Instrument `mapstructure:"instruments" yaml:"instruments"`
	Logging     LoggingConfig       `mapstructure:"logging"     yaml:"logging"`
}

// DataConfig locates the bar store.
type DataConfig struct {
	Dir        string `mapstructure:"dir"         yaml:"dir"`    // one <SYMBOL>.csv or <SYMBOL>.parquet per instrument
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	Driver     string `mapstructure:"driver"      yaml:"driver"` // "csv", "sqlite" or "parquet"
	CacheTTL   int    `mapstructure:"cache_ttl"   yaml:"cache_ttl"` // seconds
}

// CacheDuration returns CacheTTL as a duration.
func (d DataConfig) CacheDuration() time.Duration {
	return time.Duration(d.CacheTTL) * time.Second
}

// QueryConfig holds query executor settings.
type QueryConfig struct {
	DefaultTimeframe  string `mapstructure:"default_timeframe"   yaml:"default_timeframe"`
	Precision         int    `mapstructure:"precision"           yaml:"precision"`
	SessionGapMinutes int    `mapstructure:"session_gap_minutes" yaml:"session_gap_minutes"`
	MaxSourceRows     int    `mapstructure:"max_source_rows"     yaml:"max_source_rows"` // 0 = unlimited
}

// BacktestConfig holds backtest engine settings.
type BacktestConfig struct {
	Timeframe   string `mapstructure:"timeframe"    yaml:"timeframe"`
	ContextBars int    `mapstructure:"context_bars" yaml:"context_bars"`
	Workers     int    `mapstructure:"workers"      yaml:"workers"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host           string   `mapstructure:"host"            yaml:"host"`
	Port           int      `mapstructure:"port"            yaml:"port"`
	CORSOrigins    []string `mapstructure:"cors_origins"    yaml:"cors_origins"`
	RequestTimeout int      `mapstructure:"request_timeout" yaml:"request_timeout"` // seconds
	RateLimit      float64  `mapstructure:"rate_limit"      yaml:"rate_limit"`      // requests/sec per client, 0 disables
	RateBurst      int      `mapstructure:"rate_burst"      yaml:"rate_burst"`
}

// Addr returns host:port.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.barb/config.yaml (home directory)
//  3. /etc/barb/config.yaml (system)
//
// Environment variables override config file values.
// Format: BARB_<SECTION>_<KEY>, e.g., BARB_API_PORT
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".barb"))
	v.AddConfigPath("/etc/barb")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Data defaults
	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.sqlite_path", "./data/barb.db")
	v.SetDefault("data.driver", "csv")
	v.SetDefault("data.cache_ttl", 3600)

	// Query defaults
	v.SetDefault("query.default_timeframe", string(models.Timeframe1Min))
	v.SetDefault("query.precision", 4)
	v.SetDefault("query.session_gap_minutes", 90)
	v.SetDefault("query.max_source_rows", 0)

	// Backtest defaults
	v.SetDefault("backtest.timeframe", string(models.TimeframeDaily))
	v.SetDefault("backtest.context_bars", 200)
	v.SetDefault("backtest.workers", 4)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.request_timeout", 30)
	v.SetDefault("api.rate_limit", 10.0)
	v.SetDefault("api.rate_burst", 20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if !models.Timeframe(c.Query.DefaultTimeframe).Valid() {
		errs = append(errs, fmt.Errorf("query.default_timeframe: invalid timeframe %q", c.Query.DefaultTimeframe))
	}
	if c.Backtest.Timeframe != "" && !models.Timeframe(c.Backtest.Timeframe).Valid() {
		errs = append(errs, fmt.Errorf("backtest.timeframe: invalid timeframe %q", c.Backtest.Timeframe))
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port: must be in 1..65535, got %d", c.API.Port))
	}
	switch c.Data.Driver {
	case "csv", "sqlite", "parquet":
	default:
		errs = append(errs, fmt.Errorf("data.driver: want csv, sqlite or parquet, got %q", c.Data.Driver))
	}
	for _, inst := range c.Instruments {
		if err := market.ValidateSessions(inst.Sessions); err != nil {
			errs = append(errs, fmt.Errorf("instruments.%s: %w", inst.Symbol, err))
		}
	}
	return errors.Join(errs...)
}

// Registry builds the instrument registry, falling back to the built-in
// instrument set when none are configured.
func (c *Config) Registry() (*market.Registry, error) {
	if len(c.Instruments) == 0 {
		return market.NewRegistry(market.DefaultInstruments())
	}
	return market.NewRegistry(c.Instruments)
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
