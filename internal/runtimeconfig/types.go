package runtimeconfig

import "time"

// Config holds the process-wide knobs for the resilience fabric: logging,
// metrics exposition, pool/load-balancer behaviour, and the default retry
// policy new pkg/talosclient.Client instances inherit unless
// talosclient.Config.Retry overrides it. None of this is wire-protocol
// configuration — that lives in internal/transport's Config and
// internal/config's profile-file layer.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Pool    PoolConfig    `yaml:"pool"`
	Retry   RetryConfig   `yaml:"retry"`
}

// LoggingConfig mirrors internal/logger.Config's fields for YAML/env
// round-tripping.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "json" or "pretty"
	LogDir     string `yaml:"log_dir"`
	Theme      string `yaml:"theme"`
	FileOutput bool   `yaml:"file_output"`
	MaxSize    int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age_days"`
}

// MetricsConfig mirrors internal/metrics.Config plus an on/off switch and
// an address a caller's own HTTP surface can bind the exposition text to.
type MetricsConfig struct {
	Enabled       bool      `yaml:"enabled"`
	Namespace     string    `yaml:"namespace"`
	Address       string    `yaml:"address"`
	Buckets       []float64 `yaml:"buckets"`
	EndpointLabel bool      `yaml:"endpoint_label"`
	MethodLabel   bool      `yaml:"method_label"`
}

// PoolConfig mirrors the fields internal/pool.Config accepts, so the
// profile-file/env layer can set them without a second parallel type.
type PoolConfig struct {
	LoadBalancer       string        `yaml:"load_balancer"` // round-robin | random | least-failures | failover
	FailureThreshold   int           `yaml:"failure_threshold"`
	RecoveryThreshold  int           `yaml:"recovery_threshold"` // reserved, currently inert
	HealthCheckTimeout time.Duration `yaml:"health_check_timeout"`
}

// RetryConfig mirrors internal/retry.Config's tagged-union shape in a
// YAML/env-friendly flattened form.
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	Backoff       string        `yaml:"backoff"` // none | fixed | linear | exponential
	Initial       time.Duration `yaml:"initial"`
	Step          time.Duration `yaml:"step"`        // linear only
	Multiplier    float64       `yaml:"multiplier"`  // exponential only
	Max           time.Duration `yaml:"max"`
	Jitter        bool          `yaml:"jitter"`       // exponential only
	TotalDeadline time.Duration `yaml:"total_deadline"`
}
