package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/architeacher/device-inventory/pkg/circuitbreaker"
	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/ports"
)

type (
	DevicesService struct {
		repo      ports.DeviceRepository
		publisher ports.LifecycleEventPublisher
		breaker   *circuitbreaker.Breaker
		logger    logger.Logger
		now       func() time.Time
	}

	Option func(*DevicesService)
)

// WithEventPublisher sends lifecycle events after each committed mutation.
func WithEventPublisher(publisher ports.LifecycleEventPublisher) Option {
	return func(s *DevicesService) {
		s.publisher = publisher
	}
}

// WithCircuitBreaker guards every repository call with breaker.
func WithCircuitBreaker(breaker *circuitbreaker.Breaker) Option {
	return func(s *DevicesService) {
		s.breaker = breaker
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *DevicesService) {
		s.now = now
	}
}

func NewDevicesService(repo ports.DeviceRepository, log logger.Logger, opts ...Option) *DevicesService {
	s := &DevicesService{
		repo:   repo,
		logger: log,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IsStoreFailure tells the circuit breaker which errors mean the store is unhealthy.
func IsStoreFailure(err error) bool {
	if err == nil {
		return false
	}

	return !errors.Is(err, model.ErrDeviceNotFound) &&
		!errors.Is(err, model.ErrDuplicateDevice) &&
		!errors.Is(err, context.Canceled)
}

func (s *DevicesService) CreateDevice(ctx context.Context, name, brand string, state model.State) (*model.Device, error) {
	device, err := model.ValidateCreate(model.Device{Name: name, Brand: brand, State: state}, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.guard(func() error { return s.repo.Create(ctx, &device) }); err != nil {
		return nil, err
	}

	s.publish(ctx, model.ActionCreated, device, nil)

	return &device, nil
}

func (s *DevicesService) GetDevice(ctx context.Context, id model.DeviceID) (*model.Device, error) {
	return s.fetch(ctx, id)
}

func (s *DevicesService) ListDevices(ctx context.Context, filter model.DeviceFilter) (*model.DeviceList, error) {
	list, err := circuitbreaker.Execute(s.breaker, func() (*model.DeviceList, error) {
		return s.repo.List(ctx, filter.Normalize())
	})

	return list, translateBreakerError(err)
}

func (s *DevicesService) UpdateDevice(
	ctx context.Context,
	id model.DeviceID,
	name, brand string,
	state model.State,
	creationTime time.Time,
) (*model.Device, error) {
	current, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := model.ValidateFullReplace(*current, model.Device{
		Name:         name,
		Brand:        brand,
		State:        state,
		CreationTime: creationTime,
	})
	if err != nil {
		return nil, err
	}

	return s.save(ctx, model.ActionUpdated, next, current)
}

// PatchDevice reads the record once and writes the merged result without a
// version check. Concurrent writers to the same device can overwrite each other.
func (s *DevicesService) PatchDevice(ctx context.Context, id model.DeviceID, ops []model.PatchOperation) (*model.Device, error) {
	current, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := model.ValidatePartialPatch(*current, ops)
	if err != nil {
		return nil, err
	}

	return s.save(ctx, model.ActionPatched, next, current)
}

func (s *DevicesService) DeleteDevice(ctx context.Context, id model.DeviceID) error {
	current, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}

	if err := model.ValidateDelete(*current); err != nil {
		return err
	}

	if err := s.guard(func() error { return s.repo.Delete(ctx, id) }); err != nil {
		return err
	}

	s.publish(ctx, model.ActionDeleted, *current, current)

	return nil
}

func (s *DevicesService) fetch(ctx context.Context, id model.DeviceID) (*model.Device, error) {
	device, err := circuitbreaker.Execute(s.breaker, func() (*model.Device, error) {
		return s.repo.FetchByID(ctx, id)
	})

	return device, translateBreakerError(err)
}

func (s *DevicesService) save(ctx context.Context, action model.LifecycleAction, next model.Device, previous *model.Device) (*model.Device, error) {
	next.UpdatedAt = model.Timestamp(s.now())

	if err := s.guard(func() error { return s.repo.Update(ctx, &next) }); err != nil {
		return nil, err
	}

	s.publish(ctx, action, next, previous)

	return &next, nil
}

func (s *DevicesService) guard(fn func() error) error {
	return translateBreakerError(circuitbreaker.Do(s.breaker, fn))
}

func (s *DevicesService) publish(ctx context.Context, action model.LifecycleAction, device model.Device, previous *model.Device) {
	if s.publisher == nil {
		return
	}

	event := model.NewLifecycleEvent(action, device, previous, s.now())

	if err := s.publisher.Publish(ctx, event); err != nil {
		reqLogger := s.logger.WithContext(ctx)
		reqLogger.Warn().
			Err(err).
			Str("device_id", device.ID.String()).
			Str("action", string(action)).
			Msg("failed to publish lifecycle event")
	}
}

func translateBreakerError(err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", model.ErrServiceUnavailable, err)
	}

	return err
}
