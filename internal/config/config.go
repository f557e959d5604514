// Package config loads txiso configuration.
//
// Sources, highest precedence first: command-line flags that were set,
// TXISO_* environment variables (TXISO_STORE_DSN for store.dsn), the config
// file, then defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/txiso/internal/store"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TXISO"

// Config holds the application configuration.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// StoreConfig selects the engine under test.
type StoreConfig struct {
	// Driver is pgx, postgres, sqlite3 or memory.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`

	// MaxOpenConns caps the pool; 0 is unlimited.
	MaxOpenConns int `mapstructure:"max_open_conns"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	// File receives the Prometheus text exposition after each command.
	// Empty disables the export.
	File string `mapstructure:"file"`
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"driver":         "store.driver",
	"dsn":            "store.dsn",
	"max-open-conns": "store.max_open_conns",
	"log-level":      "logging.level",
	"log-format":     "logging.format",
	"metrics-file":   "metrics.file",
}

// Load reads configuration from configPath (or txiso.yaml in ~/.txiso and
// the working directory when empty), the environment, and flags. flags may
// be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".txiso"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("txiso")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", store.DefaultDriver)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_open_conns", 0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("metrics.file", "")
}

// Validate rejects unknown drivers, levels and formats.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case store.DriverPgx, store.DriverPQ, store.DriverSQLite, "sqlite", store.DriverMemory:
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	if c.Store.MaxOpenConns < 0 {
		return fmt.Errorf("store.max_open_conns: must not be negative")
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: want text or json, got %q", c.Logging.Format)
	}
	return nil
}

// SlogLevel parses Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// StoreOptions converts the pool settings for store.Open.
func (s StoreConfig) StoreOptions() store.Options {
	return store.Options{MaxOpenConns: s.MaxOpenConns}
}
