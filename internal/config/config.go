// Package config provides configuration management for the escalator.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable the escalator reads.
const EnvPrefix = "ESCALATOR"

const (
	// DefaultInterval is the longest a worker sleeps between cycles.
	DefaultInterval = 3 * time.Second

	// DefaultSleepReschedule is how far a sleeping escalation's next check is pushed out.
	DefaultSleepReschedule = 60 * time.Second

	// DefaultAlertMaxRetries is the retry count recorded on alerts that can never be delivered.
	DefaultAlertMaxRetries = 3

	// DefaultCacheTTL is how long catalog configuration reads are cached.
	DefaultCacheTTL = 30 * time.Second

	// DefaultCELCacheSize is the number of compiled expression programs kept.
	DefaultCELCacheSize = 1000

	// DefaultLeaseRenewal is how often a held partition lock is confirmed.
	DefaultLeaseRenewal = 10 * time.Second

	// DefaultMaxBodyBytes caps admin API request bodies.
	DefaultMaxBodyBytes = 64 << 10
)

// ErrInvalidConfig is returned when the configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the application configuration.
type Config struct {
	// Environment names the deployment, e.g. development or production.
	Environment string `mapstructure:"environment"`

	// LogLevel is the zerolog level name.
	LogLevel string `mapstructure:"log_level"`

	// DatabaseURL is the Postgres connection string.
	DatabaseURL string `mapstructure:"database_url"`

	// HTTPPort serves /health, /ready and /metrics.
	HTTPPort string `mapstructure:"http_port"`

	// GRPCPort serves the gRPC health service.
	GRPCPort string `mapstructure:"grpc_port"`

	// Workers is the number of partitions the escalations table is split into.
	Workers int `mapstructure:"workers"`

	// WorkerIndex selects the partition this process runs; -1 runs all of them.
	WorkerIndex int `mapstructure:"worker_index"`

	Interval        time.Duration `mapstructure:"interval"`
	SleepReschedule time.Duration `mapstructure:"sleep_reschedule"`
	AlertMaxRetries int           `mapstructure:"alert_max_retries"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CELCacheSize    int           `mapstructure:"cel_cache_size"`

	// UseMemoryStores runs against in-memory stores instead of Postgres.
	UseMemoryStores bool `mapstructure:"use_memory_stores"`

	// DryRunCommands records remote commands without executing them.
	DryRunCommands bool `mapstructure:"dry_run_commands"`

	// PartitionLocks guards each partition with a Postgres advisory lock so
	// duplicate deployments of the same worker index do not both run it.
	PartitionLocks bool          `mapstructure:"partition_locks"`
	LeaseRenewal   time.Duration `mapstructure:"lease_renewal"`

	// AdminSecret signs maintenance API requests; empty disables verification.
	AdminSecret  string `mapstructure:"admin_secret"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

// New returns a viper instance with the escalator's defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("database_url", "")
	v.SetDefault("http_port", "8080")
	v.SetDefault("grpc_port", "9090")
	v.SetDefault("workers", 1)
	v.SetDefault("worker_index", -1)
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("sleep_reschedule", DefaultSleepReschedule)
	v.SetDefault("alert_max_retries", DefaultAlertMaxRetries)
	v.SetDefault("cache_ttl", DefaultCacheTTL)
	v.SetDefault("cel_cache_size", DefaultCELCacheSize)
	v.SetDefault("use_memory_stores", false)
	v.SetDefault("dry_run_commands", true)
	v.SetDefault("partition_locks", true)
	v.SetDefault("lease_renewal", DefaultLeaseRenewal)
	v.SetDefault("admin_secret", "")
	v.SetDefault("max_body_bytes", DefaultMaxBodyBytes)
	return v
}

// Load reads the optional config file, applies environment overrides and validates the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.WorkerIndex < -1 || c.WorkerIndex >= c.Workers {
		return fmt.Errorf("%w: worker_index must be -1 or in [0, %d), got %d", ErrInvalidConfig, c.Workers, c.WorkerIndex)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.SleepReschedule <= 0 {
		return fmt.Errorf("%w: sleep_reschedule must be positive", ErrInvalidConfig)
	}
	if c.PartitionLocks && !c.UseMemoryStores && c.LeaseRenewal <= 0 {
		return fmt.Errorf("%w: lease_renewal must be positive when partition_locks is set", ErrInvalidConfig)
	}
	if c.DatabaseURL == "" && !c.UseMemoryStores {
		return fmt.Errorf("%w: database_url is required unless use_memory_stores is set", ErrInvalidConfig)
	}
	return nil
}

// WorkerIndexes returns the partitions this process runs.
func (c *Config) WorkerIndexes() []int {
	if c.WorkerIndex >= 0 {
		return []int{c.WorkerIndex}
	}
	indexes := make([]int, c.Workers)
	for i := range indexes {
		indexes[i] = i
	}
	return indexes
}
