// Package circuitbreaker guards chain adapters that keep failing so a broken
// explorer is probed once per cooldown instead of on every scan tick.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/payment-scanner/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means calls are allowed
	StateClosed State = "closed"
	// StateOpen means calls are rejected until the cooldown elapses
	StateOpen State = "open"
	// StateHalfOpen means a single probe call is in flight
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures a circuit breaker
type Config struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures int
	// Cooldown is how long the circuit stays open before a probe is allowed
	Cooldown time.Duration
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:        name,
		MaxFailures: 5,
		Cooldown:    2 * time.Minute,
	}
}

// CircuitBreaker implements the circuit breaker pattern on consecutive failures
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
	logger      *logging.Logger

	mu               sync.Mutex
	state            State
	consecutiveFails int
	totalCalls       int
	totalFailures    int
	rejected         int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	probing          bool
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	maxFailures := config.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &CircuitBreaker{
		name:            config.Name,
		maxFailures:     maxFailures,
		cooldown:        config.Cooldown,
		now:             time.Now,
		logger:          logging.Component("circuit_breaker").WithField("circuitBreaker", config.Name),
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn unless the circuit is open. A nil return from fn counts
// as success; any error counts as failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) < cb.cooldown {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
		cb.logger.WithField("state", StateHalfOpen).Info("Circuit breaker probing")
		return nil
	case StateHalfOpen:
		if cb.probing {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++
	cb.probing = false

	if err == nil {
		cb.consecutiveFails = 0
		if cb.state != StateClosed {
			cb.setState(StateClosed)
			cb.logger.WithField("state", StateClosed).Info("Circuit breaker closed after successful probe")
		}
		return
	}

	cb.totalFailures++
	cb.consecutiveFails++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateOpen)
		cb.logger.WithError(err).WithField("state", StateOpen).Warn("Circuit breaker reopened after failed probe")
	case StateClosed:
		if cb.consecutiveFails >= cb.maxFailures {
			cb.setState(StateOpen)
			cb.logger.WithError(err).WithFields(map[string]interface{}{
				"state":            StateOpen,
				"consecutiveFails": cb.consecutiveFails,
				"cooldown":         cb.cooldown.String(),
			}).Warn("Circuit breaker opened due to failures")
		}
	}
}

func (cb *CircuitBreaker) setState(state State) {
	cb.state = state
	cb.lastStateChange = cb.now()
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	TotalCalls       int       `json:"totalCalls"`
	TotalFailures    int       `json:"totalFailures"`
	Rejected         int       `json:"rejected"`
	LastFailureTime  time.Time `json:"lastFailureTime"`
	LastStateChange  time.Time `json:"lastStateChange"`
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() *Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return &Stats{
		Name:             cb.name,
		State:            cb.state,
		ConsecutiveFails: cb.consecutiveFails,
		TotalCalls:       cb.totalCalls,
		TotalFailures:    cb.totalFailures,
		Rejected:         cb.rejected,
		LastFailureTime:  cb.lastFailureTime,
		LastStateChange:  cb.lastStateChange,
	}
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.consecutiveFails = 0
	cb.probing = false
	cb.logger.Info("Circuit breaker manually reset")
}
