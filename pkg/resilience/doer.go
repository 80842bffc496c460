package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"finance-sync/pkg/logging"
	"finance-sync/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrCircuitOpen is returned when the breaker rejects a request.
	ErrCircuitOpen = errors.New("resilience: circuit breaker open")

	// ErrTimeout is returned when the configured request deadline elapses.
	ErrTimeout = errors.New("resilience: request timeout")

	errServerFailure = errors.New("resilience: server error response")
)

// IsCircuitOpen reports whether err came from an open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ResilientDoer wraps a Doer with a circuit breaker and an optional
// per-request timeout. Network errors and 5xx responses count as failures;
// 4xx responses are the caller's problem and never trip the breaker.
// It never retries.
type ResilientDoer struct {
	next    Doer
	name    string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.MetricsCollector
	logger  *logging.Logger
}

var _ Doer = (*ResilientDoer)(nil)

// NewResilientDoer wraps next. A nil next uses http.DefaultClient.
func NewResilientDoer(next Doer, config ResilientConfig) *ResilientDoer {
	return NewResilientDoerWithMetrics(next, config, metrics.NoOpCollector{})
}

// NewResilientDoerWithMetrics wraps next and reports breaker transitions to collector.
func NewResilientDoerWithMetrics(next Doer, config ResilientConfig, collector metrics.MetricsCollector) *ResilientDoer {
	if next == nil {
		next = http.DefaultClient
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if config.Name == "" {
		config.Name = "api"
	}

	logger := logging.Global().Named("resilience").Named(config.Name)

	rd := &ResilientDoer{
		next:    next,
		name:    config.Name,
		timeout: config.Timeout,
		metrics: collector,
		logger:  logger,
	}

	logger.Info("resilient transport initialized",
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", config.CircuitBreakerConfig.MaxRequests),
		zap.Duration("circuit_interval", config.CircuitBreakerConfig.Interval),
		zap.Duration("circuit_timeout", config.CircuitBreakerConfig.Timeout),
	)

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.CircuitBreakerConfig.MaxRequests,
		Interval:    config.CircuitBreakerConfig.Interval,
		Timeout:     config.CircuitBreakerConfig.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return config.CircuitBreakerConfig.readyToTrip(Counts{
				Requests:             counts.Requests,
				TotalSuccesses:       counts.TotalSuccesses,
				TotalFailures:        counts.TotalFailures,
				ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
				ConsecutiveFailures:  counts.ConsecutiveFailures,
			})
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about server health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			rd.metrics.RecordCircuitState(name, toCircuitState(to))
		},
	}

	rd.cb = gobreaker.NewCircuitBreaker(settings)
	return rd
}

// Do sends req through the breaker. On a 5xx the response is still
// returned so the caller can read the error body.
func (rd *ResilientDoer) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()

	var cancel context.CancelFunc
	if rd.timeout > 0 {
		var ctx context.Context
		ctx, cancel = context.WithTimeout(req.Context(), rd.timeout)
		req = req.WithContext(ctx)
	}

	result, err := rd.cb.Execute(func() (interface{}, error) {
		resp, err := rd.next.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerFailure
		}
		return resp, nil
	})

	if errors.Is(err, errServerFailure) {
		err = nil
	}

	if err != nil {
		if cancel != nil {
			cancel()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			rd.logger.Warn("circuit breaker open - request rejected",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
			)
			return nil, ErrCircuitOpen
		}
		if rd.timeout > 0 && errors.Is(err, context.DeadlineExceeded) && req.Context().Err() != nil {
			rd.logger.Warn("request timeout",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Duration("timeout", rd.timeout),
				zap.Duration("elapsed", time.Since(start)),
			)
			return nil, fmt.Errorf("%w after %s: %v", ErrTimeout, rd.timeout, err)
		}
		return nil, err
	}

	resp := result.(*http.Response)
	if cancel != nil {
		// The deadline must outlive Do so the caller can read the body.
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	}
	return resp, nil
}

// State returns the breaker's current state.
func (rd *ResilientDoer) State() metrics.CircuitState {
	return toCircuitState(rd.cb.State())
}

// Name returns the breaker name.
func (rd *ResilientDoer) Name() string {
	return rd.name
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func toCircuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	default:
		return metrics.CircuitClosed
	}
}
