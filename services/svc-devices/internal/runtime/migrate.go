package runtime

import (
	"context"
	"fmt"

	infraPostgres "github.com/architeacher/device-inventory/services/svc-devices/internal/infrastructure/postgres"
)

// Migrate connects to the configured database and applies pending schema
// migrations without starting any server.
func Migrate(ctx context.Context) ([]string, error) {
	deps := &dependencies{}

	opts := []DependencyOption{
		WithConfig(),
		WithLogger(),
		WithSecretsRepository(),
		WithConfigLoader(ctx),
		WithDatabase(ctx),
	}

	defer deps.release(ctx)

	for _, opt := range opts {
		if err := opt(deps); err != nil {
			return nil, fmt.Errorf("failed to apply dependency option: %w", err)
		}
	}

	return infraPostgres.Migrate(ctx, deps.infra.dbPool, deps.infra.logger)
}
