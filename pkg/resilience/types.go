package resilience

import (
	"context"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Executor is the operation a CircuitBreaker or Retry protects.
type Executor func(ctx context.Context) error

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in logs and metrics.
	Name string

	// FailureThreshold is the number of consecutive failures (in Closed
	// state) that trips the breaker to Open. Defaults to 5.
	FailureThreshold int64

	// SuccessThreshold is the number of consecutive successes (in
	// Half-Open state) required to close the breaker again. Defaults to 2.
	SuccessThreshold int64

	// Timeout is how long the breaker stays Open before allowing a trial
	// request through (Half-Open). Defaults to 30s.
	Timeout time.Duration

	// OnStateChange, if set, is invoked whenever the breaker transitions.
	OnStateChange func(name string, from, to State)
}

// DefaultCircuitBreakerConfig returns sane defaults for a named breaker.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}
