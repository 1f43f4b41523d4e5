package ports

import (
	"context"

	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
)

type (
	Saver interface {
		// Create stores a new device, assigning an ID when it has none.
		Create(ctx context.Context, device *model.Device) error
	}

	Fetcher interface {
		// FetchByID returns model.ErrDeviceNotFound when no record exists.
		FetchByID(ctx context.Context, id model.DeviceID) (*model.Device, error)
	}

	Finder interface {
		// List returns a page of devices narrowed by brand and state.
		List(ctx context.Context, filter model.DeviceFilter) (*model.DeviceList, error)
	}

	Updater interface {
		Update(ctx context.Context, device *model.Device) error
	}

	Deleter interface {
		Delete(ctx context.Context, id model.DeviceID) error
	}

	DeviceRepository interface {
		Saver
		Fetcher
		Finder
		Updater
		Deleter
	}
)
