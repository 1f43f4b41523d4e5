package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/architeacher/device-inventory/services/svc-devices/internal/ports"
	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/vault/api"
	"github.com/kelseyhightower/envconfig"
)

var errSecretsDisabled = errors.New("secret storage is not enabled")

// Loader keeps the service configuration in sync with Vault. SIGHUP reloads
// secrets when their version changed, SIGUSR1 dumps the configuration.
type Loader struct {
	mu               sync.RWMutex
	cfg              *ServiceConfig
	secretsRepo      ports.SecretsRepository
	configSignalChan chan os.Signal
	reloadErrors     chan error
	lastVersion      uint
	dumpWriter       io.Writer
}

func NewLoader(cfg *ServiceConfig, secretsRepo ports.SecretsRepository, initialVersion uint) *Loader {
	return &Loader{
		cfg:              cfg,
		secretsRepo:      secretsRepo,
		configSignalChan: make(chan os.Signal, 1),
		reloadErrors:     make(chan error, 1),
		lastVersion:      initialVersion,
		dumpWriter:       os.Stdout,
	}
}

func Init() (*ServiceConfig, error) {
	cfg := &ServiceConfig{}

	err := envconfig.Process("", cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service configuration: %w", err)
	}

	return cfg, nil
}

func (l *Loader) WatchConfigSignals(ctx context.Context) <-chan error {
	signal.Notify(l.configSignalChan, syscall.SIGHUP, syscall.SIGUSR1)

	var ticker *time.Ticker
	if l.cfg.SecretsStorage.Enabled && l.cfg.SecretsStorage.PollInterval > 0 {
		ticker = time.NewTicker(l.cfg.SecretsStorage.PollInterval)
	}

	go func() {
		defer signal.Stop(l.configSignalChan)
		defer close(l.reloadErrors)

		var tick <-chan time.Time
		if ticker != nil {
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-ctx.Done():
				return

			case <-tick:
				l.handleConfigReload(ctx)

			case sig := <-l.configSignalChan:
				switch sig {
				case syscall.SIGHUP:
					l.handleConfigReload(ctx)

				case syscall.SIGUSR1:
					l.DumpConfig()
				}
			}
		}
	}()

	return l.reloadErrors
}

// DumpConfig writes the configuration as JSON. Secret fields are tagged
// json:"-" and never leave the process this way.
func (l *Loader) DumpConfig() {
	l.mu.RLock()
	configJSON, err := json.MarshalIndent(l.cfg, "", "  ")
	l.mu.RUnlock()

	if err != nil {
		fmt.Fprintf(l.dumpWriter, "Error marshaling config: %v\n", err)

		return
	}

	fmt.Fprintf(l.dumpWriter, "\n=== Configuration Dump ===\n%s\n=== End Configuration ===\n\n", string(configJSON))
}

// Load authenticates against Vault, applies the secrets at
// apps/data/<mount> to cfg and returns the secret version.
func (l *Loader) Load(ctx context.Context) (uint, error) {
	if !l.cfg.SecretsStorage.Enabled {
		return 0, errSecretsDisabled
	}

	if err := l.authenticateVault(ctx, l.cfg.SecretsStorage); err != nil {
		return 0, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	secret, err := l.readSecret(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load secrets from Vault: %w", err)
	}

	data, err := secretSection(secret, "data")
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	applySecretsToConfig(l.cfg, data)
	l.mu.Unlock()

	metadata, err := secretSection(secret, "metadata")
	if err != nil {
		return 0, err
	}

	version, err := secretVersion(metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to get secret version: %w", err)
	}

	l.lastVersion = version

	return version, nil
}

func (l *Loader) authenticateVault(ctx context.Context, storage SecretsStorage) error {
	switch strings.ToLower(storage.AuthMethod) {
	case "token":
		if storage.Token == "" {
			return fmt.Errorf("token is required for token auth method")
		}
		l.secretsRepo.SetToken(storage.Token)

		return nil

	case "approle":
		if storage.RoleID == "" || storage.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for approle auth method")
		}

		data := map[string]any{
			"role_id":   storage.RoleID,
			"secret_id": storage.SecretID,
		}

		resp, err := l.secretsRepo.WriteWithContext(ctx, "auth/approle/login", data)
		if err != nil {
			return fmt.Errorf("failed to authenticate via approle: %w", err)
		}

		if resp == nil || resp.Auth == nil {
			return fmt.Errorf("no auth info returned from Vault")
		}

		l.secretsRepo.SetToken(resp.Auth.ClientToken)

		return nil

	default:
		return fmt.Errorf("unsupported auth method: %s", storage.AuthMethod)
	}
}

func (l *Loader) handleConfigReload(ctx context.Context) {
	secret, err := l.readSecret(ctx)
	if err != nil {
		l.reportReloadStatus(fmt.Errorf("failed to load secret metadata: %w", err))

		return
	}

	metadata, err := secretSection(secret, "metadata")
	if err != nil {
		l.reportReloadStatus(err)

		return
	}

	currentVersion, err := secretVersion(metadata)
	if err != nil {
		l.reportReloadStatus(fmt.Errorf("failed to get secret version: %w", err))

		return
	}

	if currentVersion == l.lastVersion {
		return
	}

	if _, err := l.Load(ctx); err != nil {
		l.reportReloadStatus(err)

		return
	}

	l.reportReloadStatus(nil)
}

func (l *Loader) readSecret(ctx context.Context) (*api.Secret, error) {
	storage := l.cfg.SecretsStorage
	path := fmt.Sprintf("apps/data/%s", storage.MountPath)

	ctx, cancel := context.WithTimeout(ctx, storage.Timeout)
	defer cancel()

	secret, err := backoff.Retry(ctx, func() (*api.Secret, error) {
		return l.secretsRepo.GetSecrets(ctx, path)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(storage.MaxRetries+1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read from path %s after %d retries: %w", path, storage.MaxRetries, err)
	}

	return secret, nil
}

func secretSection(secret *api.Secret, section string) (map[string]any, error) {
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	raw, ok := secret.Data[section]
	if !ok || raw == nil {
		return nil, nil
	}

	result, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid secret format, %q is %T", section, raw)
	}

	return result, nil
}

func secretVersion(metadata map[string]any) (uint, error) {
	currentVersion, ok := metadata["version"]
	if !ok {
		return 0, nil
	}

	switch v := currentVersion.(type) {
	case float64:
		return uint(v), nil
	case int:
		return uint(v), nil
	case uint:
		return v, nil
	case json.Number:
		version, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("failed to parse version: %w", err)
		}

		return uint(version), nil
	default:
		return 0, fmt.Errorf("unexpected version type: %T", currentVersion)
	}
}

func applySecretsToConfig(cfg *ServiceConfig, data map[string]any) {
	for key, value := range data {
		if strValue, ok := value.(string); ok && strValue != "" {
			applySecretToConfig(cfg, key, strValue)
		}
	}
}

func applySecretToConfig(cfg *ServiceConfig, key, value string) {
	switch key {
	case "POSTGRES_USERNAME":
		cfg.Database.Username = value
	case "POSTGRES_PASSWORD":
		cfg.Database.Password = value
	case "CACHE_PASSWORD":
		cfg.Cache.Password = value
	case "MQTT_USERNAME":
		cfg.Events.MQTT.Username = value
	case "MQTT_PASSWORD":
		cfg.Events.MQTT.Password = value
	case "INFLUXDB_TOKEN":
		cfg.Events.InfluxDB.Token = value
	}
}

func (l *Loader) reportReloadStatus(err error) {
	select {
	case l.reloadErrors <- err:
	default:
	}
}
