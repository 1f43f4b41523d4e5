package repos

import (
	"context"

	"github.com/architeacher/device-inventory/services/svc-devices/internal/ports"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// DependencyProbe adapts anything that can be pinged into a named checker.
type DependencyProbe struct {
	name     string
	target   pinger
	critical bool
}

var _ ports.DependencyChecker = (*DependencyProbe)(nil)

// NewDatabaseChecker is critical: the service cannot serve without its store.
func NewDatabaseChecker(db ports.DatabaseHealthChecker) *DependencyProbe {
	return &DependencyProbe{name: "postgres", target: db, critical: true}
}

// NewCacheChecker only degrades the report; idempotency and rate limiting
// fail open when configured to.
func NewCacheChecker(cache pinger) *DependencyProbe {
	return &DependencyProbe{name: "redis", target: cache}
}

func (p *DependencyProbe) Name() string {
	return p.name
}

func (p *DependencyProbe) Critical() bool {
	return p.critical
}

func (p *DependencyProbe) Check(ctx context.Context) error {
	return p.target.Ping(ctx)
}
