package circuitbreaker

import (
	"errors"

	"github.com/sony/gobreaker/v2"
)

type (
	// Breaker guards calls to a dependency. A nil *Breaker passes every call through.
	Breaker struct {
		cb *gobreaker.CircuitBreaker[any]
	}

	Option func(*gobreaker.Settings)

	State = gobreaker.State
)

// WithSuccessClassifier marks errors that should not count as failures,
// such as domain errors returned by a healthy dependency.
func WithSuccessClassifier(isSuccessful func(err error) bool) Option {
	return func(s *gobreaker.Settings) {
		s.IsSuccessful = isSuccessful
	}
}

// WithStateChangeHook is called on every state transition.
func WithStateChangeHook(hook func(name string, from, to State)) Option {
	return func(s *gobreaker.Settings) {
		s.OnStateChange = hook
	}
}

// New returns nil when the breaker is disabled.
func New(cfg Config, opts ...Option) *Breaker {
	if !cfg.Enabled {
		return nil
	}

	threshold := max(cfg.FailureThreshold, 1)

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: uint32(cfg.MaxRequests),
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
	}

	for _, opt := range opts {
		opt(&settings)
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker[any](settings)}
}

func (b *Breaker) Name() string {
	if b == nil {
		return ""
	}

	return b.cb.Name()
}

// State reports the current breaker state. A nil breaker is always closed.
func (b *Breaker) State() State {
	if b == nil {
		return gobreaker.StateClosed
	}

	return b.cb.State()
}

// Execute runs fn through the breaker and translates gobreaker's rejections
// into ErrCircuitOpen and ErrTooManyRequests.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}

	var zero T

	out, err := b.cb.Execute(func() (any, error) {
		return fn()
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return zero, ErrCircuitOpen
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return zero, ErrTooManyRequests
	}

	result, ok := out.(T)
	if !ok {
		return zero, err
	}

	return result, err
}

// Do is Execute for calls that only return an error.
func Do(b *Breaker, fn func() error) error {
	_, err := Execute(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})

	return err
}
