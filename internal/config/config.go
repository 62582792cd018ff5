// Package config loads lakemap configuration with viper.
//
// Precedence, highest first: runtime overrides, LAKEMAP_* environment
// variables, the lakemap.yaml config file, built-in defaults.
package config

import (
	"time"

	"github.com/3leaps/lakemap/pkg/backend"
)

// Config is the complete lakemap configuration.
type Config struct {
	Server      ServerConfig       `mapstructure:"server"`
	Logging     LoggingConfig      `mapstructure:"logging"`
	Metrics     MetricsConfig      `mapstructure:"metrics"`
	Health      HealthConfig       `mapstructure:"health"`
	Debug       DebugConfig        `mapstructure:"debug"`
	Workers     int                `mapstructure:"workers"`
	Tree        TreeConfig         `mapstructure:"tree"`
	Backend     BackendConfig      `mapstructure:"backend"`
	Session     SessionConfig      `mapstructure:"session"`
	Connections []ConnectionConfig `mapstructure:"connections"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type DebugConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// TreeConfig holds tree build defaults for both the CLI and the API.
type TreeConfig struct {
	Depth      int           `mapstructure:"depth"`
	MaxFolders int           `mapstructure:"max_folders"`
	Parallel   int           `mapstructure:"parallel"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Strategy   string        `mapstructure:"strategy"`
	IDs        string        `mapstructure:"ids"`
}

// BackendConfig tunes provider access.
type BackendConfig struct {
	// RateLimit is requests per second across all containers; 0 is unlimited.
	RateLimit float64 `mapstructure:"rate_limit"`
	MaxKeys   int     `mapstructure:"max_keys"`
}

// SessionConfig controls API connection lifetime.
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// ConnectionConfig is a connection opened when the server starts.
type ConnectionConfig struct {
	Name           string `mapstructure:"name"`
	backend.Target `mapstructure:",squash"`

	ContainerFilter []string `mapstructure:"container_filter"`
}
