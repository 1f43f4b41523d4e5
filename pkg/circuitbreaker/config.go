package circuitbreaker

import "time"

// Config holds the configuration for a circuit breaker.
type Config struct {
	Name    string
	Enabled bool

	// MaxRequests is the number of probes allowed while half-open. Zero means one.
	MaxRequests uint

	// Interval clears the closed-state counts periodically. Zero never clears them.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint
}
