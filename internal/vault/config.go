// Package vault wraps the HashiCorp Vault API client for reading signing
// key material from the KV secrets engine.
package vault

import (
	"fmt"
	"time"
)

// AuthMethod specifies the Vault authentication method.
type AuthMethod string

// Authentication method constants.
const (
	// AuthMethodToken uses a static token.
	AuthMethodToken AuthMethod = "token"

	// AuthMethodAppRole logs in with a role ID and secret ID.
	AuthMethodAppRole AuthMethod = "approle"
)

// IsValid returns true if the auth method is valid.
func (m AuthMethod) IsValid() bool {
	return m == AuthMethodToken || m == AuthMethodAppRole
}

// Config represents Vault client configuration.
type Config struct {
	// Address is the Vault server address.
	Address string `yaml:"address" json:"address"`

	// Namespace is the Vault namespace (Enterprise feature).
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`

	// AuthMethod specifies the authentication method.
	AuthMethod AuthMethod `yaml:"authMethod" json:"authMethod"`

	// Token for token authentication.
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// AppRole holds AppRole credentials.
	AppRole *AppRoleConfig `yaml:"appRole,omitempty" json:"appRole,omitempty"`

	// Mount is the KV secrets engine mount point.
	Mount string `yaml:"mount" json:"mount"`

	// KVVersion is 1 or 2. Defaults to 2.
	KVVersion int `yaml:"kvVersion,omitempty" json:"kvVersion,omitempty"`

	// Timeout bounds each request.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// MaxRetries is passed to the API client retry policy.
	MaxRetries int `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty"`
}

// AppRoleConfig configures AppRole authentication.
type AppRoleConfig struct {
	RoleID    string `yaml:"roleId" json:"roleId"`
	SecretID  string `yaml:"secretId" json:"secretId"`
	MountPath string `yaml:"mountPath,omitempty" json:"mountPath,omitempty"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Address == "" {
		return NewConfigurationError("address", "address is required")
	}
	method := c.AuthMethod
	if method == "" {
		method = AuthMethodToken
	}
	if !method.IsValid() {
		return NewConfigurationError("authMethod", fmt.Sprintf("unsupported auth method %q", c.AuthMethod))
	}
	if method == AuthMethodToken && c.Token == "" {
		return NewConfigurationError("token", "token is required for token auth")
	}
	if method == AuthMethodAppRole && (c.AppRole == nil || c.AppRole.RoleID == "" || c.AppRole.SecretID == "") {
		return NewConfigurationError("appRole", "roleId and secretId are required for approle auth")
	}
	if c.KVVersion != 0 && c.KVVersion != 1 && c.KVVersion != 2 {
		return NewConfigurationError("kvVersion", "kvVersion must be 1 or 2")
	}
	return nil
}

func (c *Config) mount() string {
	if c.Mount == "" {
		return "secret"
	}
	return c.Mount
}

func (c *Config) kvVersion() int {
	if c.KVVersion == 0 {
		return 2
	}
	return c.KVVersion
}
