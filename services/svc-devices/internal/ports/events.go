package ports

import (
	"context"

	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
)

// LifecycleEventPublisher forwards committed device mutations to observers.
type LifecycleEventPublisher interface {
	Publish(ctx context.Context, event model.LifecycleEvent) error
	Close() error
}
