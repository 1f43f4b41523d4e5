package ports

import "context"

// DependencyStatus represents the health status of a dependency.
type DependencyStatus struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// DependencyChecker probes a single named dependency.
type DependencyChecker interface {
	Name() string
	Check(ctx context.Context) error
	// Critical dependencies decide readiness. Others only show up in the report.
	Critical() bool
}

type DatabaseHealthChecker interface {
	Ping(ctx context.Context) error
}
