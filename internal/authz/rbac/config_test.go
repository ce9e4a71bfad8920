package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "default is valid", mutate: func(*Config) {}},
		{name: "allow default policy", mutate: func(c *Config) { c.DefaultPolicy = EffectAllow }},
		{name: "bad default policy", mutate: func(c *Config) { c.DefaultPolicy = "permit" }, wantErr: "defaultPolicy"},
		{name: "missing admin role", mutate: func(c *Config) { c.AdminRole = " " }, wantErr: "adminRole"},
		{name: "empty data segment", mutate: func(c *Config) { c.Developer.DataSegment = "" }, wantErr: "dataSegment"},
		{name: "slash in fault segment", mutate: func(c *Config) { c.Developer.FaultSegment = "a/b" }, wantErr: "faultSegment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	var nilConfig *Config
	assert.Error(t, nilConfig.Validate())
}

func TestConfig_ApplyDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	err := yaml.Unmarshal([]byte("defaultPolicy: allow\ndeveloper:\n  faultSegment: incidents\n"), &cfg)
	assert.NoError(t, err)

	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, EffectAllow, cfg.DefaultPolicy)
	assert.Equal(t, RoleAdmin, cfg.AdminRole)
	assert.Equal(t, []string{"GET"}, cfg.ViewerMethods)
	assert.Equal(t, []string{"GET", "POST"}, cfg.Developer.Methods)
	assert.Equal(t, "data", cfg.Developer.DataSegment)
	assert.Equal(t, "incidents", cfg.Developer.FaultSegment)
}
