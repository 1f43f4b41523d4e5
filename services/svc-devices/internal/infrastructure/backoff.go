package infrastructure

import (
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/cenkalti/backoff/v5"
)

// NewExponentialBackOff builds the retry schedule used while waiting for
// backing services at startup.
func NewExponentialBackOff(cfg config.Backoff) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = cfg.Jitter
	b.MaxInterval = cfg.MaxDelay

	return b
}
