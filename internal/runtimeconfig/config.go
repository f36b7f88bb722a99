// Package runtimeconfig implements the ambient process configuration layer
// (logging, metrics, pool defaults, retry defaults) that sits above the
// per-connection profile format in internal/config.
package runtimeconfig

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/xmv-solutions/talos-client-go/internal/health"
	"github.com/xmv-solutions/talos-client-go/internal/retry"
)

const (
	EnvPrefix = "TALOS"

	DefaultFileWriteDelay = 150 * time.Millisecond
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns sensible defaults for every knob: exponential
// retry with the default policy, round-robin load balancing, plain JSON
// logging.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			LogDir: "",
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			Namespace:     "talos_client",
			Address:       ":9090",
			EndpointLabel: true,
			MethodLabel:   true,
		},
		Pool: PoolConfig{
			LoadBalancer:       "round-robin",
			FailureThreshold:   int(health.DefaultFailureThreshold),
			RecoveryThreshold:  1,
			HealthCheckTimeout: 5 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:    3,
			Backoff:       "exponential",
			Initial:       100 * time.Millisecond,
			Multiplier:    2.0,
			Max:           10 * time.Second,
			Jitter:        true,
			TotalDeadline: 0,
		},
	}
}

// Load reads config.yaml from the current directory (or TALOS_CONFIG_FILE),
// layers TALOS_-prefixed environment overrides on top via viper's
// AutomaticEnv, and optionally watches the file for changes, debouncing
// rapid-fire fsnotify events (editors often emit several per save).
func Load(onConfigChange func()) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv(EnvPrefix + "_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	viper.WatchConfig()
	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return
			}
			lastReload = now

			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}

	return cfg, nil
}

// ToBackoff converts the flattened YAML/env representation into
// internal/retry's tagged-union Backoff.
func (r RetryConfig) ToBackoff() retry.Backoff {
	switch r.Backoff {
	case "fixed":
		return retry.FixedBackoff(r.Initial)
	case "linear":
		return retry.LinearBackoff(r.Initial, r.Step, r.Max)
	case "exponential":
		mult := r.Multiplier
		if mult == 0 {
			mult = 2.0
		}
		return retry.ExponentialBackoff(r.Initial, mult, r.Max, r.Jitter)
	default:
		return retry.NoBackoff()
	}
}

// ToRetryConfig converts to internal/retry.Config using the default
// retryability policy; callers needing a custom policy build a
// retry.Config directly instead of going through this conversion.
func (r RetryConfig) ToRetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:    r.MaxRetries,
		Policy:        retry.DefaultPolicy(),
		Backoff:       r.ToBackoff(),
		TotalDeadline: r.TotalDeadline,
	}
}
