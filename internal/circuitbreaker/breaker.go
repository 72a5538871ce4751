// Package circuitbreaker wraps calls to downstream collaborators, such as
// calendar providers and notification channels, so a failing dependency
// trips open instead of being hammered on every workflow step.
package circuitbreaker

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/common/logging"
)

// Config holds circuit breaker tuning knobs.
type Config struct {
	// MaxFailures is the consecutive failure count that opens the circuit.
	MaxFailures int
	// Timeout is how long the circuit stays open before probing half-open.
	Timeout time.Duration
	// MaxConcurrentRequests limits probes in the half-open state.
	MaxConcurrentRequests int
}

// DefaultConfig suits HTTP-backed collaborators.
func DefaultConfig() Config {
	return Config{
		MaxFailures:           5,
		Timeout:               60 * time.Second,
		MaxConcurrentRequests: 1,
	}
}

// Breaker guards one named collaborator.
type Breaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
}

func New(name string, config Config, logger logging.Logger) *Breaker {
	if config.MaxFailures <= 0 {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(config.MaxConcurrentRequests),
		Interval:    time.Minute,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.MaxFailures)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// client-side errors say nothing about the collaborator's health
			switch errors.GetType(err) {
			case errors.ErrTypeValidation, errors.ErrTypeNotFound:
				return true
			}
			return false
		},
	}

	return &Breaker{
		name:    name,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Execute runs fn inside the breaker and maps open-circuit rejections to a
// connection error carrying the breaker name.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.breaker.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, errors.ConnectionError(fmt.Sprintf("circuit breaker %q is open", b.name), err)
	}
	return result, err
}

// IsOpen reports whether the circuit currently rejects calls.
func (b *Breaker) IsOpen() bool {
	return b.breaker.State() == gobreaker.StateOpen
}
