package repos_test

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/repos"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

var (
	deviceColumns = []string{"id", "name", "brand", "state", "creation_time", "updated_at"}
	listColumns   = []string{"id", "name", "brand", "state", "creation_time", "updated_at", "total_count"}
)

const (
	insertSQL = `INSERT INTO devices (id,name,brand,state,creation_time,updated_at) VALUES ($1,$2,$3,$4,$5,$6)`
	selectSQL = `SELECT id, name, brand, state, creation_time, updated_at FROM devices WHERE id = $1 LIMIT 1`
	updateSQL = `UPDATE devices SET name = $1, brand = $2, state = $3, updated_at = $4 WHERE id = $5`
	deleteSQL = `DELETE FROM devices WHERE id = $1`
)

func runRepoTest(
	t *testing.T,
	setupMock func(pgxmock.PgxPoolIface),
	testFn func(*testing.T, *repos.DevicesRepository, *bytes.Buffer),
) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	setupMock(mock)

	logBuffer := &bytes.Buffer{}
	repo := repos.NewDevicesRepository(mock, repos.NewPgxScanner(), logger.NewBufferedTestLogger(logBuffer),
		repos.WithQueryTimeout(time.Second))
	testFn(t, repo, logBuffer)

	require.NoError(t, mock.ExpectationsWereMet())
}

func newDevice(state model.State) *model.Device {
	now := model.Timestamp(time.Now())

	return &model.Device{
		ID:           model.NewDeviceID(),
		Name:         "Router",
		Brand:        "LG",
		State:        state,
		CreationTime: now,
		UpdatedAt:    now,
	}
}

func TestDevicesRepository_Create(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		dbErr       error
		expectedErr error
	}{
		{
			name: "successfully create device",
		},
		{
			name:        "unique violation returns ErrDuplicateDevice",
			dbErr:       &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"},
			expectedErr: model.ErrDuplicateDevice,
		},
		{
			name:        "other database error wraps ErrDatabaseQuery",
			dbErr:       errors.New("connection reset"),
			expectedErr: model.ErrDatabaseQuery,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			device := newDevice(model.StateAvailable)

			runRepoTest(t, func(mock pgxmock.PgxPoolIface) {
				exec := mock.ExpectExec(regexp.QuoteMeta(insertSQL)).
					WithArgs(device.ID.String(), device.Name, device.Brand, "Available", device.CreationTime, device.UpdatedAt)
				if tc.dbErr != nil {
					exec.WillReturnError(tc.dbErr)
				} else {
					exec.WillReturnResult(pgxmock.NewResult("INSERT", 1))
				}
			}, func(t *testing.T, repo *repos.DevicesRepository, _ *bytes.Buffer) {
				err := repo.Create(context.Background(), device)
				if tc.expectedErr != nil {
					require.ErrorIs(t, err, tc.expectedErr)

					return
				}

				require.NoError(t, err)
			})
		})
	}
}

func TestDevicesRepository_CreateAssignsID(t *testing.T) {
	t.Parallel()

	device := newDevice(model.StateInactive)
	device.ID = model.DeviceID{}

	runRepoTest(t, func(mock pgxmock.PgxPoolIface) {
		mock.ExpectExec(regexp.QuoteMeta(insertSQL)).
			WithArgs(pgxmock.AnyArg(), device.Name, device.Brand, "Inactive", device.CreationTime, device.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}, func(t *testing.T, repo *repos.DevicesRepository, _ *bytes.Buffer) {
		require.NoError(t, repo.Create(context.Background(), device))
		require.False(t, device.ID.IsZero())
	})
}

func TestDevicesRepository_FetchByID(t *testing.T) {
	t.Parallel()

	now := model.Timestamp(time.Now())
	id := model.NewDeviceID()

	cases := []struct {
		name          string
		setupMock     func(mock pgxmock.PgxPoolIface)
		expectedErr   error
		unexpectedErr error
		wantLog       string
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
					WithArgs(id.String()).
					WillReturnRows(pgxmock.NewRows(deviceColumns).
						AddRow(id.String(), "Router", "LG", "InUse", now, now))
			},
		},
		{
			name: "missing row maps to ErrDeviceNotFound",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
					WithArgs(id.String()).
					WillReturnRows(pgxmock.NewRows(deviceColumns))
			},
			expectedErr: model.ErrDeviceNotFound,
		},
		{
			name: "query failure is logged and wrapped",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
					WithArgs(id.String()).
					WillReturnError(errors.New("timeout"))
			},
			expectedErr: model.ErrDatabaseQuery,
			wantLog:     "database statement failed",
		},
		{
			name: "corrupt state column",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
					WithArgs(id.String()).
					WillReturnRows(pgxmock.NewRows(deviceColumns).
						AddRow(id.String(), "Router", "LG", "broken", now, now))
			},
			expectedErr:   model.ErrDatabaseQuery,
			unexpectedErr: model.ErrInvalidInput,
		},
		{
			name: "corrupt id column",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
					WithArgs(id.String()).
					WillReturnRows(pgxmock.NewRows(deviceColumns).
						AddRow("not-a-uuid", "Router", "LG", "InUse", now, now))
			},
			expectedErr:   model.ErrDatabaseQuery,
			unexpectedErr: model.ErrInvalidDeviceID,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			runRepoTest(t, tc.setupMock, func(t *testing.T, repo *repos.DevicesRepository, logs *bytes.Buffer) {
				device, err := repo.FetchByID(context.Background(), id)
				if tc.expectedErr != nil {
					require.ErrorIs(t, err, tc.expectedErr)
					require.Nil(t, device)

					if tc.unexpectedErr != nil {
						require.NotErrorIs(t, err, tc.unexpectedErr)
					}

					if tc.wantLog != "" {
						require.Contains(t, logs.String(), tc.wantLog)
					}

					return
				}

				require.NoError(t, err)
				require.Equal(t, id, device.ID)
				require.Equal(t, model.StateInUse, device.State)
				require.True(t, device.CreationTime.Equal(now))
			})
		})
	}
}

func TestDevicesRepository_List(t *testing.T) {
	t.Parallel()

	now := model.Timestamp(time.Now())
	brand := "LG"
	inUse := model.StateInUse

	cases := []struct {
		name           string
		filter         model.DeviceFilter
		query          string
		args           []any
		rows           int
		total          uint
		wantTotalPages uint
		wantHasNext    bool
	}{
		{
			name:           "defaults sort by creation time ascending",
			filter:         model.DeviceFilter{},
			query:          `FROM devices ORDER BY creation_time ASC, id ASC LIMIT 20 OFFSET 0`,
			rows:           2,
			total:          2,
			wantTotalPages: 1,
		},
		{
			name:           "brand filter",
			filter:         model.DeviceFilter{Brand: &brand, Page: 1, Size: 1},
			query:          `FROM devices WHERE brand = $1 ORDER BY creation_time ASC, id ASC LIMIT 1 OFFSET 0`,
			args:           []any{"LG"},
			rows:           1,
			total:          3,
			wantTotalPages: 3,
			wantHasNext:    true,
		},
		{
			name:           "state filter with descending name on page two",
			filter:         model.DeviceFilter{State: &inUse, Page: 2, Size: 5, Sort: model.Sort{Field: model.SortByName, Descending: true}},
			query:          `FROM devices WHERE state = $1 ORDER BY name DESC, id DESC LIMIT 5 OFFSET 5`,
			args:           []any{"InUse"},
			rows:           1,
			total:          6,
			wantTotalPages: 2,
		},
		{
			name:   "oversized page is clamped",
			filter: model.DeviceFilter{Size: 1000},
			query:  `LIMIT 100 OFFSET 0`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			runRepoTest(t, func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(listColumns)
				for range tc.rows {
					rows.AddRow(model.NewDeviceID().String(), "Router", "LG", "InUse", now, now, tc.total)
				}

				query := mock.ExpectQuery(regexp.QuoteMeta(tc.query))
				if len(tc.args) > 0 {
					query = query.WithArgs(tc.args...)
				}
				query.WillReturnRows(rows)
			}, func(t *testing.T, repo *repos.DevicesRepository, _ *bytes.Buffer) {
				list, err := repo.List(context.Background(), tc.filter)
				require.NoError(t, err)
				require.Len(t, list.Devices, tc.rows)
				require.Equal(t, tc.total, list.Pagination.TotalItems)
				require.Equal(t, tc.wantTotalPages, list.Pagination.TotalPages)
				require.Equal(t, tc.wantHasNext, list.Pagination.HasNext)
			})
		})
	}
}

func TestDevicesRepository_Update(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		affected    int64
		dbErr       error
		expectedErr error
	}{
		{name: "updates row", affected: 1},
		{name: "no row affected", affected: 0, expectedErr: model.ErrDeviceNotFound},
		{name: "database failure", dbErr: errors.New("deadlock"), expectedErr: model.ErrDatabaseQuery},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			device := newDevice(model.StateInUse)

			runRepoTest(t, func(mock pgxmock.PgxPoolIface) {
				exec := mock.ExpectExec(regexp.QuoteMeta(updateSQL)).
					WithArgs(device.Name, device.Brand, "InUse", device.UpdatedAt, device.ID.String())
				if tc.dbErr != nil {
					exec.WillReturnError(tc.dbErr)
				} else {
					exec.WillReturnResult(pgxmock.NewResult("UPDATE", tc.affected))
				}
			}, func(t *testing.T, repo *repos.DevicesRepository, _ *bytes.Buffer) {
				err := repo.Update(context.Background(), device)
				if tc.expectedErr != nil {
					require.ErrorIs(t, err, tc.expectedErr)

					return
				}

				require.NoError(t, err)
			})
		})
	}
}

func TestDevicesRepository_Delete(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		affected    int64
		expectedErr error
	}{
		{name: "deletes row", affected: 1},
		{name: "unknown id", affected: 0, expectedErr: model.ErrDeviceNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			id := model.NewDeviceID()

			runRepoTest(t, func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(regexp.QuoteMeta(deleteSQL)).
					WithArgs(id.String()).
					WillReturnResult(pgxmock.NewResult("DELETE", tc.affected))
			}, func(t *testing.T, repo *repos.DevicesRepository, _ *bytes.Buffer) {
				err := repo.Delete(context.Background(), id)
				if tc.expectedErr != nil {
					require.ErrorIs(t, err, tc.expectedErr)

					return
				}

				require.NoError(t, err)
			})
		})
	}
}

func TestDevicesRepository_Ping(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectPing().WillReturnError(errors.New("refused"))

	repo := repos.NewDevicesRepository(mock, repos.NewPgxScanner(), logger.NewTestLogger())
	require.ErrorIs(t, repo.Ping(context.Background()), model.ErrDatabaseConnection)
	require.NoError(t, mock.ExpectationsWereMet())
}
