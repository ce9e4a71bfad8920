package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

const escapedDollar = "\x00ESCAPED_DOLLAR\x00"

// LoadConfig reads, substitutes and parses the file at path. It does not
// validate the result.
func LoadConfig(path string) (*Config, error) {
	return LoadConfigWithLookup(path, os.LookupEnv)
}

// LoadConfigWithLookup is LoadConfig with a custom variable lookup.
func LoadConfigWithLookup(path string, lookup func(string) (string, bool)) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data, lookup)
}

// LoadConfigFromReader parses configuration from r.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data, os.LookupEnv)
}

// Parse substitutes environment references in data using lookup and decodes
// the result over DefaultConfig. Unknown keys are rejected.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	content := SubstituteEnvVars(string(data), lookup)

	cfg := DefaultConfig()
	if strings.TrimSpace(content) == "" {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewBufferString(content))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// SubstituteEnvVars replaces ${VAR} and ${VAR:-default} with values from
// lookup. "$$" yields a literal "$".
func SubstituteEnvVars(content string, lookup func(string) (string, bool)) string {
	content = strings.ReplaceAll(content, "$$", escapedDollar)

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}
		if value, ok := lookup(submatches[1]); ok {
			return value
		}
		if len(submatches) >= 3 {
			return submatches[2]
		}
		return ""
	})

	return strings.ReplaceAll(result, escapedDollar, "$")
}

// applyDefaults restores defaults that an explicit but partial section
// cleared.
func (c *Config) applyDefaults() {
	if c.Policy == nil {
		c.Policy = DefaultConfig().Policy
	}
	c.Policy.ApplyDefaults()
	c.Audit.ApplyDefaults()

	if c.Server.Address == "" {
		c.Server.Address = DefaultConfig().Server.Address
	}
	if c.Keys.SecretPrefix == "" {
		c.Keys.SecretPrefix = DefaultConfig().Keys.SecretPrefix
	}
	if c.Store.Type == "" {
		c.Store.Type = StoreMemory
	}
}
