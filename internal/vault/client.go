package vault

import (
	"context"
	"fmt"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// DefaultTimeout is used when Config.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// Client reads secrets from Vault.
type Client interface {
	// ReadKV reads the secret at path from the configured KV mount.
	ReadKV(ctx context.Context, path string) (map[string]interface{}, error)

	// Health checks that Vault is initialized and unsealed.
	Health(ctx context.Context) error

	// Close releases client resources.
	Close() error
}

// vaultClient implements the Client interface.
type vaultClient struct {
	config *Config
	api    *vaultapi.Client
	logger observability.Logger
}

var _ Client = (*vaultClient)(nil)

// New creates a Vault client and authenticates it.
func New(ctx context.Context, cfg *Config, logger observability.Logger) (Client, error) {
	if cfg == nil {
		return nil, NewConfigurationError("", "configuration is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = cfg.Address
	apiConfig.Timeout = DefaultTimeout
	if cfg.Timeout > 0 {
		apiConfig.Timeout = cfg.Timeout
	}
	if cfg.MaxRetries > 0 {
		apiConfig.MaxRetries = cfg.MaxRetries
	}

	api, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, NewVaultError("init", "", err)
	}
	if cfg.Namespace != "" {
		api.SetNamespace(cfg.Namespace)
	}

	c := &vaultClient{
		config: cfg,
		api:    api,
		logger: logger.With(observability.String("component", "vault")),
	}
	if err := c.authenticate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *vaultClient) authenticate(ctx context.Context) error {
	if c.config.AuthMethod != AuthMethodAppRole {
		c.api.SetToken(c.config.Token)
		return nil
	}

	mountPath := c.config.AppRole.MountPath
	if mountPath == "" {
		mountPath = "approle"
	}
	secret, err := c.api.Logical().WriteWithContext(ctx, "auth/"+mountPath+"/login", map[string]interface{}{
		"role_id":   c.config.AppRole.RoleID,
		"secret_id": c.config.AppRole.SecretID,
	})
	if err != nil {
		return NewVaultError("login", mountPath, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err))
	}
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return NewVaultError("login", mountPath, ErrAuthenticationFailed)
	}

	c.api.SetToken(secret.Auth.ClientToken)
	c.logger.Info("authenticated with vault", observability.String("method", string(AuthMethodAppRole)))
	return nil
}

// ReadKV reads the secret at path from the configured KV mount. KV v2 data
// is unwrapped from its "data" envelope.
func (c *vaultClient) ReadKV(ctx context.Context, path string) (map[string]interface{}, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, NewVaultError("kv_read", "", ErrInvalidPath)
	}

	fullPath := c.config.mount() + "/" + path
	if c.config.kvVersion() == 2 {
		fullPath = c.config.mount() + "/data/" + path
	}

	secret, err := c.api.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, NewVaultError("kv_read", fullPath, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, NewVaultError("kv_read", fullPath, ErrSecretNotFound)
	}

	if c.config.kvVersion() == 1 {
		return secret.Data, nil
	}

	// deleted KV v2 versions carry "data": null
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok || data == nil {
		return nil, NewVaultError("kv_read", fullPath, ErrSecretNotFound)
	}

	c.logger.Debug("secret read", observability.String("path", fullPath))
	return data, nil
}

// Health checks that Vault is initialized and unsealed.
func (c *vaultClient) Health(ctx context.Context) error {
	resp, err := c.api.Sys().HealthWithContext(ctx)
	if err != nil {
		return NewVaultError("health", "", err)
	}
	if !resp.Initialized || resp.Sealed {
		return NewVaultError("health", "", fmt.Errorf("vault not ready: initialized=%t sealed=%t", resp.Initialized, resp.Sealed))
	}
	return nil
}

// Close releases client resources.
func (c *vaultClient) Close() error {
	c.api.ClearToken()
	return nil
}
