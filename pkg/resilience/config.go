package resilience

import (
	"time"
)

// ResilientConfig configures resilience features for the API transport.
type ResilientConfig struct {
	// Name identifies the breaker in logs and metrics
	Name string `yaml:"name"`

	// Timeout bounds a single request including body read. Zero means no
	// deadline beyond the caller's context.
	Timeout time.Duration `yaml:"timeout"`

	// CircuitBreakerConfig configures the circuit breaker behavior
	CircuitBreakerConfig CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed to pass through
	// when the CircuitBreaker is half-open. Default: 1
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the cyclic period of the closed state for the CircuitBreaker
	// to clear the internal counts. If Interval is 0, it never clears.
	Interval time.Duration `yaml:"interval"`

	// Timeout is the period of the open state after which the state becomes half-open.
	Timeout time.Duration `yaml:"timeout"`

	// ConsecutiveFailures trips the breaker when ReadyToTrip is nil. Default: 5
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`

	// ReadyToTrip is called with a copy of Counts whenever a request fails.
	// If ReadyToTrip returns true, the CircuitBreaker will be placed into the open state.
	ReadyToTrip func(counts Counts) bool `yaml:"-"`
}

// Counts holds the numbers of requests and their successes/failures.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// DefaultResilientConfig returns the defaults: no request deadline, trip
// after 5 consecutive failures, probe again after 30s.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Name:    "api",
		Timeout: 0,
		CircuitBreakerConfig: CircuitBreakerConfig{
			MaxRequests:         1,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
		},
	}
}

// WithTimeout returns a copy of the config with the specified timeout.
func (c ResilientConfig) WithTimeout(timeout time.Duration) ResilientConfig {
	c.Timeout = timeout
	return c
}

// WithCircuitBreakerTimeout returns a copy of the config with the specified circuit breaker timeout.
func (c ResilientConfig) WithCircuitBreakerTimeout(timeout time.Duration) ResilientConfig {
	c.CircuitBreakerConfig.Timeout = timeout
	return c
}

func (c CircuitBreakerConfig) readyToTrip(counts Counts) bool {
	if c.ReadyToTrip != nil {
		return c.ReadyToTrip(counts)
	}
	threshold := c.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	return counts.ConsecutiveFailures >= threshold
}
