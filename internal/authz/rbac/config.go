package rbac

import (
	"errors"
	"fmt"
	"strings"
)

// Built-in roles.
const (
	RoleAdmin     = "Admin"
	RoleDeveloper = "Developer"
	RoleViewer    = "Viewer"
)

// Effect is the outcome a policy or permission rule produces.
type Effect string

// Effects.
const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Valid reports whether e is a known effect.
func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

// Config represents policy engine configuration.
type Config struct {
	// DefaultPolicy applies when no rule resolves a request.
	DefaultPolicy Effect `yaml:"defaultPolicy" json:"defaultPolicy"`

	// AdminRole bypasses every check.
	AdminRole string `yaml:"adminRole" json:"adminRole"`

	// ViewerMethods are the methods the Viewer role may use.
	ViewerMethods []string `yaml:"viewerMethods,omitempty" json:"viewerMethods,omitempty"`

	// Developer configures the Developer role defaults.
	Developer DeveloperDefaults `yaml:"developer" json:"developer"`
}

// DeveloperDefaults configures what the Developer role may do without
// explicit permissions.
type DeveloperDefaults struct {
	// Methods are allowed on any path.
	Methods []string `yaml:"methods,omitempty" json:"methods,omitempty"`

	// DataSegment is the path segment under which PUT is allowed.
	DataSegment string `yaml:"dataSegment" json:"dataSegment"`

	// FaultSegment is the path segment under which DELETE is allowed.
	FaultSegment string `yaml:"faultSegment" json:"faultSegment"`
}

// DefaultConfig returns the default policy configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultPolicy: EffectDeny,
		AdminRole:     RoleAdmin,
		ViewerMethods: []string{"GET"},
		Developer: DeveloperDefaults{
			Methods:      []string{"GET", "POST"},
			DataSegment:  "data",
			FaultSegment: "faults",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}
	if !c.DefaultPolicy.Valid() {
		return fmt.Errorf("invalid defaultPolicy: %q (must be 'allow' or 'deny')", c.DefaultPolicy)
	}
	if strings.TrimSpace(c.AdminRole) == "" {
		return errors.New("adminRole is required")
	}
	if c.Developer.DataSegment == "" || strings.Contains(c.Developer.DataSegment, "/") {
		return fmt.Errorf("invalid developer.dataSegment: %q", c.Developer.DataSegment)
	}
	if c.Developer.FaultSegment == "" || strings.Contains(c.Developer.FaultSegment, "/") {
		return fmt.Errorf("invalid developer.faultSegment: %q", c.Developer.FaultSegment)
	}
	return nil
}

// ApplyDefaults fills unset fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.DefaultPolicy == "" {
		c.DefaultPolicy = def.DefaultPolicy
	}
	if c.AdminRole == "" {
		c.AdminRole = def.AdminRole
	}
	if len(c.ViewerMethods) == 0 {
		c.ViewerMethods = def.ViewerMethods
	}
	if len(c.Developer.Methods) == 0 {
		c.Developer.Methods = def.Developer.Methods
	}
	if c.Developer.DataSegment == "" {
		c.Developer.DataSegment = def.Developer.DataSegment
	}
	if c.Developer.FaultSegment == "" {
		c.Developer.FaultSegment = def.Developer.FaultSegment
	}
}
