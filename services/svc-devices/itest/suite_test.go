//go:build integration

package itest

import (
	"context"
	"testing"
	"time"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/repos"
	infraPostgres "github.com/architeacher/device-inventory/services/svc-devices/internal/infrastructure/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage    = "postgres:18-alpine"
	postgresDatabase = "devices_test"
	postgresUsername = "test"
	postgresPassword = "test"
)

// postgresSuite starts one PostgreSQL container per suite and applies the
// embedded migrations. Tables are truncated before every test.
type postgresSuite struct {
	suite.Suite

	suiteCtx    context.Context
	suiteCancel context.CancelFunc
	container   *postgres.PostgresContainer
	pool        *pgxpool.Pool
	repo        *repos.DevicesRepository
}

func (s *postgresSuite) SetupSuite() {
	if testing.Short() {
		s.T().Skip("skipping integration test in short mode")
	}

	s.suiteCtx, s.suiteCancel = context.WithTimeout(context.Background(), 5*time.Minute)

	container, err := postgres.Run(s.suiteCtx,
		postgresImage,
		postgres.WithDatabase(postgresDatabase),
		postgres.WithUsername(postgresUsername),
		postgres.WithPassword(postgresPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.suiteCtx, "sslmode=disable")
	s.Require().NoError(err)

	pool, err := pgxpool.New(s.suiteCtx, connStr)
	s.Require().NoError(err)
	s.pool = pool

	log := logger.NewTestLogger()

	applied, err := infraPostgres.Migrate(s.suiteCtx, s.pool, log)
	s.Require().NoError(err)
	s.Require().NotEmpty(applied)

	s.repo = repos.NewDevicesRepository(s.pool, repos.NewPgxScanner(), log, repos.WithQueryTimeout(5*time.Second))
}

func (s *postgresSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}

	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}

	if s.suiteCancel != nil {
		s.suiteCancel()
	}
}

func (s *postgresSuite) SetupTest() {
	_, err := s.pool.Exec(s.T().Context(), "TRUNCATE TABLE devices")
	s.Require().NoError(err)
}
