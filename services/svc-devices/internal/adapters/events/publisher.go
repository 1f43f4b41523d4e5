package events

import (
	"context"
	"errors"
	"time"

	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/ports"
)

var ErrPublisherClosed = errors.New("lifecycle publisher closed")

// Payload is the JSON document sent to event sinks.
type Payload struct {
	Action        model.LifecycleAction `json:"action"`
	DeviceID      string                `json:"deviceId"`
	Name          string                `json:"name"`
	Brand         string                `json:"brand"`
	State         model.State           `json:"state"`
	PreviousState *model.State          `json:"previousState,omitempty"`
	CreationTime  time.Time             `json:"creationTime"`
	OccurredAt    time.Time             `json:"occurredAt"`
}

func NewPayload(event model.LifecycleEvent) Payload {
	payload := Payload{
		Action:       event.Action,
		DeviceID:     event.Device.ID.String(),
		Name:         event.Device.Name,
		Brand:        event.Device.Brand,
		State:        event.Device.State,
		CreationTime: event.Device.CreationTime,
		OccurredAt:   event.OccurredAt,
	}

	if event.Previous != nil {
		previous := event.Previous.State
		payload.PreviousState = &previous
	}

	return payload
}

// FanOutPublisher delivers every event to all sinks and joins their errors.
type FanOutPublisher struct {
	sinks []ports.LifecycleEventPublisher
}

// NewPublisher collapses the configured sinks into a single publisher.
// With no sinks it returns a NoopPublisher.
func NewPublisher(sinks ...ports.LifecycleEventPublisher) ports.LifecycleEventPublisher {
	active := make([]ports.LifecycleEventPublisher, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			active = append(active, sink)
		}
	}

	switch len(active) {
	case 0:
		return NoopPublisher{}
	case 1:
		return active[0]
	default:
		return &FanOutPublisher{sinks: active}
	}
}

func (p *FanOutPublisher) Publish(ctx context.Context, event model.LifecycleEvent) error {
	var errs []error

	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (p *FanOutPublisher) Close() error {
	var errs []error

	for _, sink := range p.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, model.LifecycleEvent) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}
