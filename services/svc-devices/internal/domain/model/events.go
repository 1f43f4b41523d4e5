package model

import "time"

type LifecycleAction string

const (
	ActionCreated LifecycleAction = "created"
	ActionUpdated LifecycleAction = "updated"
	ActionPatched LifecycleAction = "patched"
	ActionDeleted LifecycleAction = "deleted"
)

// LifecycleEvent describes a committed mutation of a device.
type LifecycleEvent struct {
	Action     LifecycleAction
	Device     Device
	Previous   *Device
	OccurredAt time.Time
}

func NewLifecycleEvent(action LifecycleAction, device Device, previous *Device, now time.Time) LifecycleEvent {
	return LifecycleEvent{
		Action:     action,
		Device:     device,
		Previous:   previous,
		OccurredAt: now.UTC(),
	}
}

// StateChanged reports whether the event moved the device to a new state.
func (e LifecycleEvent) StateChanged() bool {
	return e.Previous == nil || e.Previous.State != e.Device.State
}
