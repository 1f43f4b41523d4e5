package commands

import (
	"context"

	"github.com/architeacher/device-inventory/pkg/decorator"
	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/pkg/metrics"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/ports"
	otelTrace "go.opentelemetry.io/otel/trace"
)

type (
	// CreateDeviceCommand registers a new device. The HTTP layer resolves an
	// absent state to Available before building it; the id and creation
	// time are assigned downstream.
	CreateDeviceCommand struct {
		Name  string
		Brand string
		State model.State
	}

	CreateDeviceCommandHandler = decorator.CommandHandler[CreateDeviceCommand, *model.Device]

	deviceRegistration struct {
		devices ports.DevicesService
	}
)

func NewCreateDeviceCommandHandler(
	svc ports.DevicesService,
	log logger.Logger,
	metricsClient metrics.Client,
	tracerProvider otelTrace.TracerProvider,
) CreateDeviceCommandHandler {
	return decorator.ApplyCommandDecorators[CreateDeviceCommand, *model.Device](
		deviceRegistration{devices: svc}, log, metricsClient, tracerProvider,
	)
}

// Handle returns the stored device, including its generated id.
func (h deviceRegistration) Handle(ctx context.Context, cmd CreateDeviceCommand) (*model.Device, error) {
	return h.devices.CreateDevice(ctx, cmd.Name, cmd.Brand, cmd.State)
}
