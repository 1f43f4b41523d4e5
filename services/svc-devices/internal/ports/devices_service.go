package ports

import (
	"context"
	"time"

	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
)

// DevicesService runs device operations through the lifecycle rules.
type DevicesService interface {
	CreateDevice(ctx context.Context, name, brand string, state model.State) (*model.Device, error)
	GetDevice(ctx context.Context, id model.DeviceID) (*model.Device, error)
	ListDevices(ctx context.Context, filter model.DeviceFilter) (*model.DeviceList, error)
	UpdateDevice(ctx context.Context, id model.DeviceID, name, brand string, state model.State, creationTime time.Time) (*model.Device, error)
	PatchDevice(ctx context.Context, id model.DeviceID, ops []model.PatchOperation) (*model.Device, error)
	DeleteDevice(ctx context.Context, id model.DeviceID) error
}
