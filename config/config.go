// Package config loads asyncload settings from defaults, an optional YAML
// file, ASYNCLOAD_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Swind/go-async-loader/internal/logging"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// ASYNCLOAD_LOGGING_LEVEL.
const EnvPrefix = "ASYNCLOAD"

const (
	DefaultTickInterval   = 16 * time.Millisecond
	DefaultMaxTextureSize = 4096
	DefaultPollInterval   = time.Second
)

var ErrInvalidConfig = errors.New("invalid config")

// WorkerCount is a worker pool size. Zero means one worker per CPU and is
// written as "auto".
type WorkerCount int

// UnmarshalText accepts "auto" or a non-negative integer.
func (w *WorkerCount) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" || strings.EqualFold(s, "auto") {
		*w = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("workers: want an integer or \"auto\", got %q", s)
	}
	*w = WorkerCount(n)
	return nil
}

// MarshalYAML writes zero as "auto".
func (w WorkerCount) MarshalYAML() (any, error) {
	if w == 0 {
		return "auto", nil
	}
	return int(w), nil
}

type MetricsConfig struct {
	// Address serves /metrics when non-empty, e.g. ":9090".
	Address      string        `mapstructure:"address" yaml:"address"`
	PollInterval time.Duration `mapstructure:"poll-interval" yaml:"poll-interval"`
}

type Config struct {
	Workers        WorkerCount    `mapstructure:"workers" yaml:"workers"`
	TickInterval   time.Duration  `mapstructure:"tick-interval" yaml:"tick-interval"`
	MaxTextureSize int            `mapstructure:"max-texture-size" yaml:"max-texture-size"`
	LockOSThread   bool           `mapstructure:"lock-os-thread" yaml:"lock-os-thread"`
	Logging        logging.Config `mapstructure:"logging" yaml:"logging"`
	Metrics        MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// SetDefaults registers every key so environment overrides are seen by
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workers", "auto")
	v.SetDefault("tick-interval", DefaultTickInterval)
	v.SetDefault("max-texture-size", DefaultMaxTextureSize)
	v.SetDefault("lock-os-thread", false)
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max-size-mb", 100)
	v.SetDefault("logging.max-backups", 3)
	v.SetDefault("metrics.address", "")
	v.SetDefault("metrics.poll-interval", DefaultPollInterval)
}

// BindFlags defines the command line flags on flagSet and binds each one to
// its config key in v.
func BindFlags(flagSet *pflag.FlagSet, v *viper.Viper) error {
	flagSet.StringP("workers", "w", "auto", "Background worker count, or \"auto\" for one per CPU.")
	flagSet.Duration("tick-interval", DefaultTickInterval, "Owner loop tick interval.")
	flagSet.Int("max-texture-size", DefaultMaxTextureSize, "Downscale decoded images so neither side exceeds this. 0 disables.")
	flagSet.Bool("lock-os-thread", false, "Pin the owner loop to one OS thread.")
	flagSet.String("log-level", "INFO", "Log severity: TRACE, DEBUG, INFO, WARNING, ERROR or OFF.")
	flagSet.String("log-format", "text", "Log format: text or json.")
	flagSet.String("log-file", "", "Log to this rotating file instead of stderr.")
	flagSet.String("metrics-address", "", "Serve Prometheus metrics on this address.")

	bindings := map[string]string{
		"workers":          "workers",
		"tick-interval":    "tick-interval",
		"max-texture-size": "max-texture-size",
		"lock-os-thread":   "lock-os-thread",
		"logging.level":    "log-level",
		"logging.format":   "log-format",
		"logging.file":     "log-file",
		"metrics.address":  "metrics-address",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flagSet.Lookup(flag)); err != nil {
			return fmt.Errorf("binding flag %q: %w", flag, err)
		}
	}
	return nil
}

// Load resolves the effective configuration. configFile may be empty.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error while reading the config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("error while unmarshaling the config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the runtime cannot start with.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick-interval must be positive, got %v", ErrInvalidConfig, c.TickInterval)
	}
	if c.MaxTextureSize < 0 {
		return fmt.Errorf("%w: max-texture-size must be >= 0, got %d", ErrInvalidConfig, c.MaxTextureSize)
	}
	if c.Metrics.PollInterval < 0 {
		return fmt.Errorf("%w: metrics.poll-interval must be >= 0", ErrInvalidConfig)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: logging: %w", ErrInvalidConfig, err)
	}
	return nil
}
