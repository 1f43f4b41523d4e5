package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	devicesTable = "devices"

	uniqueViolationCode = "23505"
)

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	deviceColumns = []string{"id", "name", "brand", "state", "creation_time", "updated_at"}
	listColumns   = append(deviceColumns[:len(deviceColumns):len(deviceColumns)], "COUNT(*) OVER() AS total_count")

	sortColumns = map[model.SortField]string{
		model.SortByCreationTime: "creation_time",
		model.SortByName:         "name",
		model.SortByBrand:        "brand",
		model.SortByState:        "state",
	}
)

type (
	// PoolOps is the subset of pgxpool.Pool the repository uses.
	PoolOps interface {
		Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
		Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
		Ping(ctx context.Context) error
	}

	// DevicesRepository persists devices in PostgreSQL.
	DevicesRepository struct {
		pool         PoolOps
		scanner      Scanner
		logger       logger.Logger
		queryTimeout time.Duration
	}

	RepositoryOption func(*DevicesRepository)

	deviceRow struct {
		ID           string    `db:"id"`
		Name         string    `db:"name"`
		Brand        string    `db:"brand"`
		State        string    `db:"state"`
		CreationTime time.Time `db:"creation_time"`
		UpdatedAt    time.Time `db:"updated_at"`
	}

	deviceRowWithCount struct {
		deviceRow
		TotalCount uint `db:"total_count"`
	}
)

// WithQueryTimeout bounds every statement issued by the repository.
func WithQueryTimeout(timeout time.Duration) RepositoryOption {
	return func(r *DevicesRepository) {
		r.queryTimeout = timeout
	}
}

func NewDevicesRepository(pool PoolOps, scanner Scanner, log logger.Logger, opts ...RepositoryOption) *DevicesRepository {
	r := &DevicesRepository{
		pool:    pool,
		scanner: scanner,
		logger:  log.Component("devices_repository"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Create inserts device, assigning a fresh ID when it has none.
func (r *DevicesRepository) Create(ctx context.Context, device *model.Device) error {
	if device.ID.IsZero() {
		device.ID = model.NewDeviceID()
	}

	query, args, err := psql.Insert(devicesTable).
		Columns(deviceColumns...).
		Values(
			device.ID.String(),
			device.Name,
			device.Brand,
			device.State.String(),
			device.CreationTime,
			device.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		if isDuplicateKeyError(err) {
			return model.ErrDuplicateDevice
		}

		return r.queryError(ctx, "insert", err)
	}

	return nil
}

func (r *DevicesRepository) FetchByID(ctx context.Context, id model.DeviceID) (*model.Device, error) {
	query, args, err := psql.Select(deviceColumns...).
		From(devicesTable).
		Where(sq.Eq{"id": id.String()}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, r.queryError(ctx, "select", err)
	}
	defer rows.Close()

	var row deviceRow
	if err := r.scanner.ScanOne(&row, rows); err != nil {
		if r.scanner.IsNotFound(err) {
			return nil, model.ErrDeviceNotFound
		}

		return nil, r.queryError(ctx, "scan", err)
	}

	return convertRowToDevice(row)
}

// List returns one page of devices. The total is computed by a window
// function in the same statement.
func (r *DevicesRepository) List(ctx context.Context, filter model.DeviceFilter) (*model.DeviceList, error) {
	filter = filter.Normalize()

	builder := psql.Select(listColumns...).
		From(devicesTable)

	if filter.Brand != nil {
		builder = builder.Where(sq.Eq{"brand": *filter.Brand})
	}

	if filter.State != nil {
		builder = builder.Where(sq.Eq{"state": filter.State.String()})
	}

	query, args, err := builder.
		OrderBy(orderBy(filter.Sort)...).
		Limit(uint64(filter.Size)).
		Offset(uint64(filter.Offset())).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, r.queryError(ctx, "list", err)
	}
	defer rows.Close()

	var deviceRows []deviceRowWithCount
	if err := r.scanner.ScanAll(&deviceRows, rows); err != nil {
		return nil, r.queryError(ctx, "scan", err)
	}

	devices := make([]*model.Device, 0, len(deviceRows))

	var total uint
	for index := range deviceRows {
		device, err := convertRowToDevice(deviceRows[index].deviceRow)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrDatabaseQuery, err)
		}

		devices = append(devices, device)
		total = deviceRows[index].TotalCount
	}

	return &model.DeviceList{
		Devices:    devices,
		Pagination: model.NewPagination(filter, total),
		Filters:    filter,
	}, nil
}

// Update overwrites the mutable columns. creation_time is never written.
func (r *DevicesRepository) Update(ctx context.Context, device *model.Device) error {
	query, args, err := psql.Update(devicesTable).
		Set("name", device.Name).
		Set("brand", device.Brand).
		Set("state", device.State.String()).
		Set("updated_at", device.UpdatedAt).
		Where(sq.Eq{"id": device.ID.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	return r.execAffectingOne(ctx, "update", query, args)
}

func (r *DevicesRepository) Delete(ctx context.Context, id model.DeviceID) error {
	query, args, err := psql.Delete(devicesTable).
		Where(sq.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	return r.execAffectingOne(ctx, "delete", query, args)
}

func (r *DevicesRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", model.ErrDatabaseConnection, err)
	}

	return nil
}

func (r *DevicesRepository) execAffectingOne(ctx context.Context, operation, query string, args []any) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return r.queryError(ctx, operation, err)
	}

	if result.RowsAffected() == 0 {
		return model.ErrDeviceNotFound
	}

	return nil
}

func (r *DevicesRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, r.queryTimeout)
}

func (r *DevicesRepository) queryError(ctx context.Context, operation string, err error) error {
	reqLogger := r.logger.WithContext(ctx)
	reqLogger.Error().
		Err(err).
		Str("operation", operation).
		Msg("database statement failed")

	return fmt.Errorf("%w: %s: %w", model.ErrDatabaseQuery, operation, err)
}

func orderBy(sort model.Sort) []string {
	column, ok := sortColumns[sort.Field]
	if !ok {
		column = sortColumns[model.SortByCreationTime]
	}

	direction := "ASC"
	if sort.Descending {
		direction = "DESC"
	}

	return []string{column + " " + direction, "id " + direction}
}

func convertRowToDevice(row deviceRow) (*model.Device, error) {
	id, err := model.ParseDeviceID(row.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: stored device id %q: %v", model.ErrDatabaseQuery, row.ID, err)
	}

	state, err := model.ParseState(row.State)
	if err != nil {
		return nil, fmt.Errorf("%w: stored device state %q is not recognised", model.ErrDatabaseQuery, row.State)
	}

	return &model.Device{
		ID:           id,
		Name:         row.Name,
		Brand:        row.Brand,
		State:        state,
		CreationTime: model.Timestamp(row.CreationTime),
		UpdatedAt:    model.Timestamp(row.UpdatedAt),
	}, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
