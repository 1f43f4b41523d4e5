package services_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/architeacher/device-inventory/pkg/circuitbreaker"
	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/services"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var fixedNow = time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)

type (
	memoryRepository struct {
		mu      sync.Mutex
		devices map[model.DeviceID]model.Device
		failAll error
	}

	recordingPublisher struct {
		mu     sync.Mutex
		events []model.LifecycleEvent
		err    error
	}
)

func newMemoryRepository(devices ...model.Device) *memoryRepository {
	repo := &memoryRepository{devices: make(map[model.DeviceID]model.Device)}
	for _, d := range devices {
		repo.devices[d.ID] = d
	}

	return repo
}

func (r *memoryRepository) Create(_ context.Context, device *model.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failAll != nil {
		return r.failAll
	}

	if device.ID.IsZero() {
		device.ID = model.NewDeviceID()
	}

	r.devices[device.ID] = *device

	return nil
}

func (r *memoryRepository) FetchByID(_ context.Context, id model.DeviceID) (*model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failAll != nil {
		return nil, r.failAll
	}

	d, ok := r.devices[id]
	if !ok {
		return nil, model.ErrDeviceNotFound
	}

	return &d, nil
}

func (r *memoryRepository) List(_ context.Context, filter model.DeviceFilter) (*model.DeviceList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failAll != nil {
		return nil, r.failAll
	}

	out := make([]*model.Device, 0, len(r.devices))
	for _, d := range r.devices {
		if filter.Brand != nil && d.Brand != *filter.Brand {
			continue
		}

		if filter.State != nil && d.State != *filter.State {
			continue
		}

		out = append(out, &d)
	}

	return &model.DeviceList{
		Devices:    out,
		Pagination: model.NewPagination(filter, uint(len(out))),
		Filters:    filter,
	}, nil
}

func (r *memoryRepository) Update(_ context.Context, device *model.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failAll != nil {
		return r.failAll
	}

	if _, ok := r.devices[device.ID]; !ok {
		return model.ErrDeviceNotFound
	}

	r.devices[device.ID] = *device

	return nil
}

func (r *memoryRepository) Delete(_ context.Context, id model.DeviceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failAll != nil {
		return r.failAll
	}

	if _, ok := r.devices[id]; !ok {
		return model.ErrDeviceNotFound
	}

	delete(r.devices, id)

	return nil
}

func (p *recordingPublisher) Publish(_ context.Context, event model.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type DevicesServiceTestSuite struct {
	suite.Suite

	ctx       context.Context
	repo      *memoryRepository
	publisher *recordingPublisher
	logs      *bytes.Buffer
	service   *services.DevicesService
	available model.Device
	inUse     model.Device
}

func TestDevicesServiceTestSuite(t *testing.T) {
	t.Parallel()

	suite.Run(t, new(DevicesServiceTestSuite))
}

func (s *DevicesServiceTestSuite) SetupTest() {
	created := fixedNow.Add(-24 * time.Hour)

	s.ctx = context.Background()
	s.available = model.Device{ID: model.NewDeviceID(), Name: "Router", Brand: "LG", State: model.StateAvailable, CreationTime: created, UpdatedAt: created}
	s.inUse = model.Device{ID: model.NewDeviceID(), Name: "Laptop", Brand: "Dell", State: model.StateInUse, CreationTime: created, UpdatedAt: created}
	s.repo = newMemoryRepository(s.available, s.inUse)
	s.publisher = &recordingPublisher{}
	s.logs = &bytes.Buffer{}
	s.service = services.NewDevicesService(
		s.repo,
		logger.NewBufferedTestLogger(s.logs),
		services.WithClock(func() time.Time { return fixedNow }),
		services.WithEventPublisher(s.publisher),
	)
}

func (s *DevicesServiceTestSuite) TestCreateDevice() {
	device, err := s.service.CreateDevice(s.ctx, "Phone", "Apple", model.StateInactive)
	s.Require().NoError(err)
	s.Require().False(device.ID.IsZero())
	s.Require().Equal(fixedNow, device.CreationTime)

	stored, err := s.repo.FetchByID(s.ctx, device.ID)
	s.Require().NoError(err)
	s.Require().Equal(*device, *stored)

	s.Require().Len(s.publisher.events, 1)
	s.Require().Equal(model.ActionCreated, s.publisher.events[0].Action)
	s.Require().Nil(s.publisher.events[0].Previous)
}

func (s *DevicesServiceTestSuite) TestCreateDeviceRejectsEmptyName() {
	_, err := s.service.CreateDevice(s.ctx, "", "Sony", model.StateAvailable)
	s.Require().ErrorIs(err, model.ErrInvalidInput)
	s.Require().Len(s.repo.devices, 2)
	s.Require().Empty(s.publisher.events)
}

func (s *DevicesServiceTestSuite) TestUpdateDevice() {
	cases := []struct {
		name    string
		id      func() model.DeviceID
		devName string
		state   model.State
		created func() time.Time
		wantErr error
	}{
		{
			name:    "replaces available device",
			id:      func() model.DeviceID { return s.available.ID },
			devName: "Switch",
			state:   model.StateInUse,
			created: func() time.Time { return s.available.CreationTime },
		},
		{
			name:    "rejects changed creation time",
			id:      func() model.DeviceID { return s.available.ID },
			devName: "Router",
			state:   model.StateAvailable,
			created: func() time.Time { return fixedNow },
			wantErr: model.ErrImmutableField,
		},
		{
			name:    "rejects rename of in use device",
			id:      func() model.DeviceID { return s.inUse.ID },
			devName: "Desktop",
			state:   model.StateInUse,
			created: func() time.Time { return s.inUse.CreationTime },
			wantErr: model.ErrStateLock,
		},
		{
			name:    "unknown device",
			id:      model.NewDeviceID,
			devName: "Router",
			state:   model.StateAvailable,
			created: func() time.Time { return s.available.CreationTime },
			wantErr: model.ErrDeviceNotFound,
		},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.SetupTest()

			brand := "LG"
			if tc.id() == s.inUse.ID {
				brand = "Dell"
			}

			got, err := s.service.UpdateDevice(s.ctx, tc.id(), tc.devName, brand, tc.state, tc.created())

			if tc.wantErr != nil {
				s.Require().ErrorIs(err, tc.wantErr)
				s.Require().Empty(s.publisher.events)

				return
			}

			s.Require().NoError(err)
			s.Require().Equal(tc.devName, got.Name)
			s.Require().Equal(fixedNow, got.UpdatedAt)
			s.Require().Len(s.publisher.events, 1)
			s.Require().Equal(model.ActionUpdated, s.publisher.events[0].Action)
			s.Require().True(s.publisher.events[0].StateChanged())
		})
	}
}

func (s *DevicesServiceTestSuite) TestPatchDevice() {
	got, err := s.service.PatchDevice(s.ctx, s.available.ID, []model.PatchOperation{
		model.Set(model.FieldState, "inuse"),
	})
	s.Require().NoError(err)
	s.Require().Equal(model.StateInUse, got.State)

	_, err = s.service.PatchDevice(s.ctx, s.available.ID, []model.PatchOperation{
		model.Set(model.FieldName, "Renamed"),
	})
	s.Require().ErrorIs(err, model.ErrStateLock)

	stored, err := s.repo.FetchByID(s.ctx, s.available.ID)
	s.Require().NoError(err)
	s.Require().Equal("Router", stored.Name)
	s.Require().Equal(model.StateInUse, stored.State)
}

func (s *DevicesServiceTestSuite) TestDeleteDevice() {
	s.Require().ErrorIs(s.service.DeleteDevice(s.ctx, s.inUse.ID), model.ErrStateLock)
	s.Require().ErrorIs(s.service.DeleteDevice(s.ctx, model.NewDeviceID()), model.ErrDeviceNotFound)

	s.Require().NoError(s.service.DeleteDevice(s.ctx, s.available.ID))
	_, err := s.service.GetDevice(s.ctx, s.available.ID)
	s.Require().ErrorIs(err, model.ErrDeviceNotFound)

	s.Require().Len(s.publisher.events, 1)
	s.Require().Equal(model.ActionDeleted, s.publisher.events[0].Action)
}

func (s *DevicesServiceTestSuite) TestListDevicesNormalizesFilter() {
	brand := "LG"

	list, err := s.service.ListDevices(s.ctx, model.DeviceFilter{Brand: &brand})
	s.Require().NoError(err)
	s.Require().Len(list.Devices, 1)
	s.Require().Equal(uint(1), list.Filters.Page)
	s.Require().Equal(model.DefaultPageSize, list.Filters.Size)
}

func (s *DevicesServiceTestSuite) TestPublishFailureDoesNotFailRequest() {
	s.publisher.err = errors.New("broker down")

	created, err := s.service.CreateDevice(s.ctx, "Phone", "Apple", model.StateAvailable)
	s.Require().NoError(err)
	s.Require().Contains(s.logs.String(), "failed to publish lifecycle event")
	s.Require().Contains(s.logs.String(), created.ID.String())
	s.Require().Contains(s.logs.String(), "broker down")
}

func TestDevicesServiceCircuitBreaker(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepository()
	repo.failAll = model.ErrDatabaseConnection

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:             "devices-store",
		Enabled:          true,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	}, circuitbreaker.WithSuccessClassifier(func(err error) bool {
		return !services.IsStoreFailure(err)
	}))

	service := services.NewDevicesService(repo, logger.NewTestLogger(), services.WithCircuitBreaker(breaker))

	for range 2 {
		_, err := service.GetDevice(context.Background(), model.NewDeviceID())
		require.ErrorIs(t, err, model.ErrDatabaseConnection)
	}

	_, err := service.GetDevice(context.Background(), model.NewDeviceID())
	require.ErrorIs(t, err, model.ErrServiceUnavailable)
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

func TestIsStoreFailure(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "not found", err: model.ErrDeviceNotFound, want: false},
		{name: "duplicate", err: model.ErrDuplicateDevice, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "query failure", err: model.ErrDatabaseQuery, want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, services.IsStoreFailure(tc.err))
		})
	}
}
