package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const lifecycleMeasurement = "device_lifecycle"

// pointWriter is the subset of api.WriteAPI the recorder relies on.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// InfluxRecorder keeps a state history of devices as InfluxDB points. Writes
// are batched by the client; asynchronous failures are logged.
type InfluxRecorder struct {
	client influxdb2.Client
	writer pointWriter
	logger logger.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewInfluxRecorder(ctx context.Context, cfg config.InfluxDB, log logger.Logger) (*InfluxRecorder, error) {
	componentLogger := log.Component("influx_recorder")

	options := influxdb2.DefaultOptions().
		SetBatchSize(cfg.BatchSize).
		SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options)

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()

		return nil, fmt.Errorf("influxdb ping failed: %w", err)
	}

	if !healthy {
		client.Close()

		return nil, fmt.Errorf("influxdb server not healthy at %s", cfg.URL)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	go func() {
		for writeErr := range writeAPI.Errors() {
			componentLogger.Error().Err(writeErr).Msg("influxdb write failed")
		}
	}()

	recorder := newInfluxRecorder(writeAPI, componentLogger)
	recorder.client = client

	return recorder, nil
}

func newInfluxRecorder(writer pointWriter, log logger.Logger) *InfluxRecorder {
	return &InfluxRecorder{
		writer: writer,
		logger: log,
	}
}

func (r *InfluxRecorder) Publish(_ context.Context, event model.LifecycleEvent) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrPublisherClosed
	}

	r.writer.WritePoint(NewLifecyclePoint(event))

	return nil
}

func (r *InfluxRecorder) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		r.writer.Flush()

		if r.client != nil {
			r.client.Close()
		}
	})

	return nil
}

// NewLifecyclePoint renders event as a device_lifecycle point.
func NewLifecyclePoint(event model.LifecycleEvent) *write.Point {
	return write.NewPoint(
		lifecycleMeasurement,
		map[string]string{
			"device_id": event.Device.ID.String(),
			"action":    string(event.Action),
			"state":     event.Device.State.String(),
			"brand":     event.Device.Brand,
		},
		map[string]interface{}{
			"in_use": event.Device.State == model.StateInUse,
		},
		event.OccurredAt,
	)
}
