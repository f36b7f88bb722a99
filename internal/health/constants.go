package health

import "time"

const (
	// DefaultFailureThreshold is the number of consecutive failures after
	// which an endpoint transitions to Unhealthy.
	DefaultFailureThreshold = 3

	// DefaultHealthCheckInterval is the suggested cadence for callers
	// driving HealthCheckAll on a timer.
	DefaultHealthCheckInterval = 30 * time.Second

	// DefaultRecoveryThreshold is accepted in config but currently inert:
	// a single success returns an endpoint to Healthy. Kept so a stricter
	// "N consecutive successes required" discipline can be added without a
	// config change.
	DefaultRecoveryThreshold = 2
)
