package secrets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/avauthz/internal/observability"
	"github.com/vyrodovalexey/avauthz/internal/vault"
)

// Config selects and configures a secrets provider.
type Config struct {
	// Provider is one of env, local, vault, aws.
	Provider string `yaml:"provider" json:"provider"`

	Env   *EnvConfig    `yaml:"env,omitempty" json:"env,omitempty"`
	Local *LocalConfig  `yaml:"local,omitempty" json:"local,omitempty"`
	Vault *VaultConfig  `yaml:"vault,omitempty" json:"vault,omitempty"`
	AWS   *AWSConfig    `yaml:"aws,omitempty" json:"aws,omitempty"`
}

// EnvConfig configures the environment provider.
type EnvConfig struct {
	Prefix string `yaml:"prefix" json:"prefix"`
}

// LocalConfig configures the local file provider.
type LocalConfig struct {
	BasePath string `yaml:"basePath" json:"basePath"`
}

// VaultConfig configures the Vault provider.
type VaultConfig struct {
	vault.Config `yaml:",inline"`

	// PathPrefix is joined to secret names, e.g. "avauthz/keys".
	PathPrefix string `yaml:"pathPrefix" json:"pathPrefix"`
}

// AWSConfig configures the AWS Secrets Manager provider.
type AWSConfig struct {
	Region   string `yaml:"region" json:"region"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	providerType, err := ValidateProviderType(c.Provider)
	if err != nil {
		return err
	}
	switch providerType {
	case ProviderTypeLocal:
		if c.Local == nil || c.Local.BasePath == "" {
			return fmt.Errorf("%w: local.basePath is required", ErrProviderNotConfigured)
		}
	case ProviderTypeVault:
		if c.Vault == nil {
			return fmt.Errorf("%w: vault section is required", ErrProviderNotConfigured)
		}
		return c.Vault.Config.Validate()
	case ProviderTypeAWS:
		if c.AWS == nil || c.AWS.Region == "" {
			return fmt.Errorf("%w: aws.region is required", ErrProviderNotConfigured)
		}
	}
	return nil
}

// NewProvider creates the provider selected by cfg.
func NewProvider(ctx context.Context, cfg *Config, logger *zap.Logger) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrProviderNotConfigured)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("provider", cfg.Provider))

	switch ProviderType(cfg.Provider) {
	case ProviderTypeEnv:
		prefix := ""
		if cfg.Env != nil {
			prefix = cfg.Env.Prefix
		}
		return NewEnvProvider(&EnvProviderConfig{Prefix: prefix, Logger: logger}), nil

	case ProviderTypeLocal:
		return NewLocalProvider(&LocalProviderConfig{BasePath: cfg.Local.BasePath, Logger: logger})

	case ProviderTypeVault:
		client, err := vault.New(ctx, &cfg.Vault.Config, observability.FromZap(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create vault client: %w", err)
		}
		return NewVaultProvider(client, cfg.Vault.PathPrefix, logger)

	default:
		return NewAWSProvider(&AWSProviderConfig{
			Region:   cfg.AWS.Region,
			Endpoint: cfg.AWS.Endpoint,
			Prefix:   cfg.AWS.Prefix,
			Logger:   logger,
		})
	}
}
