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
	// DeleteDeviceCommand removes a device. Devices in use are refused with
	// model.ErrStateLock.
	DeleteDeviceCommand struct {
		ID model.DeviceID
	}

	DeleteDeviceCommandHandler = decorator.CommandHandler[DeleteDeviceCommand, struct{}]

	deviceRemoval struct {
		devices ports.DevicesService
	}
)

func NewDeleteDeviceCommandHandler(
	svc ports.DevicesService,
	log logger.Logger,
	metricsClient metrics.Client,
	tracerProvider otelTrace.TracerProvider,
) DeleteDeviceCommandHandler {
	return decorator.ApplyCommandDecorators[DeleteDeviceCommand, struct{}](
		deviceRemoval{devices: svc}, log, metricsClient, tracerProvider,
	)
}

func (h deviceRemoval) Handle(ctx context.Context, cmd DeleteDeviceCommand) (struct{}, error) {
	return struct{}{}, h.devices.DeleteDevice(ctx, cmd.ID)
}
