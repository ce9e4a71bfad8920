package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/avauthz/internal/vault"
)

// VaultProvider implements the Provider interface using the Vault KV engine
type VaultProvider struct {
	client vault.Client
	prefix string
	logger *zap.Logger
}

// NewVaultProvider wraps an authenticated Vault client. Secret names are
// joined to prefix before lookup.
func NewVaultProvider(client vault.Client, prefix string, logger *zap.Logger) (*VaultProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: vault client is required", ErrProviderNotConfigured)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VaultProvider{client: client, prefix: prefix, logger: logger}, nil
}

// Type returns the provider type
func (p *VaultProvider) Type() ProviderType {
	return ProviderTypeVault
}

// GetSecret retrieves a secret from Vault
func (p *VaultProvider) GetSecret(ctx context.Context, name string) (*Secret, error) {
	start := time.Now()

	if name == "" {
		RecordOperation(p.Type(), "get", time.Since(start), ErrInvalidPath)
		return nil, ErrInvalidPath
	}

	path := joinPath(p.prefix, name)
	raw, err := p.client.ReadKV(ctx, path)
	if err != nil {
		RecordOperation(p.Type(), "get", time.Since(start), err)
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", ErrSecretNotFound, path, err)
		}
		p.logger.Error("Failed to read secret from vault",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	RecordOperation(p.Type(), "get", time.Since(start), nil)
	return &Secret{
		Name:     name,
		Data:     flatten(raw, json.Marshal),
		Metadata: map[string]string{"source": "vault", "path": path},
	}, nil
}

// HealthCheck checks Vault connectivity
func (p *VaultProvider) HealthCheck(ctx context.Context) error {
	return p.client.Health(ctx)
}

// Close closes the Vault client
func (p *VaultProvider) Close() error {
	return p.client.Close()
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix + name
	}
	return prefix + "/" + name
}
