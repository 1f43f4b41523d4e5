package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	selectAppliedVersions = `SELECT version FROM schema_migrations`
	insertAppliedVersion  = `INSERT INTO schema_migrations (version) VALUES ($1)`
)

// MigrationConn is the subset of pgxpool.Pool the migrator needs.
type MigrationConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, each in its own transaction, in file name order.
func Migrate(ctx context.Context, db MigrationConn, log logger.Logger) ([]string, error) {
	return migrate(ctx, db, migrationFiles, "migrations", log)
}

func migrate(ctx context.Context, db MigrationConn, files fs.FS, dir string, log logger.Logger) ([]string, error) {
	if _, err := db.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("creating schema_migrations: %w", err)
	}

	rows, err := db.Query(ctx, selectAppliedVersions)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning applied migrations: %w", err)
	}

	applied := make(map[string]struct{}, len(versions))
	for _, v := range versions {
		applied[v] = struct{}{}
	}

	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	var ran []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version := strings.TrimSuffix(entry.Name(), ".sql")
		if _, ok := applied[version]; ok {
			continue
		}

		script, err := fs.ReadFile(files, path.Join(dir, entry.Name()))
		if err != nil {
			return ran, fmt.Errorf("reading migration %s: %w", version, err)
		}

		if err := applyMigration(ctx, db, version, string(script)); err != nil {
			return ran, fmt.Errorf("applying migration %s: %w", version, err)
		}

		log.Info().Str("version", version).Msg("migration applied")
		ran = append(ran, version)
	}

	return ran, nil
}

// applyMigration runs script and records version in one transaction.
func applyMigration(ctx context.Context, db MigrationConn, version, script string) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, script); err == nil {
		_, err = tx.Exec(ctx, insertAppliedVersion, version)
	}

	if err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back: %w", rollbackErr))
		}

		return err
	}

	return tx.Commit(ctx)
}
