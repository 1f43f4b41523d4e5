package ports

import (
	"context"

	"github.com/hashicorp/vault/api"
)

// SecretsRepository reads credentials from the secrets backend.
type SecretsRepository interface {
	SetToken(v string)
	GetSecrets(ctx context.Context, path string) (*api.Secret, error)
	WriteWithContext(ctx context.Context, path string, data map[string]any) (*api.Secret, error)
}
