package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// EnvProviderConfig holds configuration for the environment variable secrets provider
type EnvProviderConfig struct {
	// Prefix is prepended to every variable name, e.g. "AUTHZ_KEYS_"
	Prefix string
	// Environ returns the process environment; defaults to os.Environ
	Environ func() []string
	// Logger is the logger instance
	Logger *zap.Logger
}

// EnvProvider reads secrets from environment variables.
//
// A secret named "production" with prefix "AUTHZ_KEYS_" is assembled from
// every variable called AUTHZ_KEYS_PRODUCTION_<KEY>, where <KEY> becomes the
// lower-cased data key. A variable named exactly AUTHZ_KEYS_PRODUCTION that
// holds a JSON object is merged in as well.
type EnvProvider struct {
	prefix  string
	environ func() []string
	logger  *zap.Logger
}

// NewEnvProvider creates a new environment variable secrets provider
func NewEnvProvider(cfg *EnvProviderConfig) *EnvProvider {
	if cfg == nil {
		cfg = &EnvProviderConfig{}
	}
	p := &EnvProvider{
		prefix:  strings.ToUpper(cfg.Prefix),
		environ: cfg.Environ,
		logger:  cfg.Logger,
	}
	if p.environ == nil {
		p.environ = os.Environ
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// Type returns the provider type
func (p *EnvProvider) Type() ProviderType {
	return ProviderTypeEnv
}

// GetSecret retrieves a secret by name
func (p *EnvProvider) GetSecret(_ context.Context, name string) (*Secret, error) {
	start := time.Now()

	if strings.TrimSpace(name) == "" {
		RecordOperation(p.Type(), "get", time.Since(start), ErrInvalidPath)
		return nil, ErrInvalidPath
	}

	base := p.prefix + envName(name)
	data := make(map[string][]byte)

	for _, kv := range p.environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}

		if key == base {
			var raw map[string]interface{}
			if err := json.Unmarshal([]byte(value), &raw); err != nil {
				p.logger.Warn("Ignoring non-JSON secret variable", zap.String("variable", key))
				continue
			}
			for k, v := range flatten(raw, json.Marshal) {
				if _, exists := data[k]; !exists {
					data[k] = v
				}
			}
			continue
		}

		if field, found := strings.CutPrefix(key, base+"_"); found && field != "" {
			data[strings.ToLower(field)] = []byte(value)
		}
	}

	if len(data) == 0 {
		err := fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		RecordOperation(p.Type(), "get", time.Since(start), err)
		return nil, err
	}

	p.logger.Debug("Resolved secret from environment",
		zap.String("name", name),
		zap.Int("keys", len(data)),
	)
	RecordOperation(p.Type(), "get", time.Since(start), nil)

	return &Secret{
		Name:     name,
		Data:     data,
		Metadata: map[string]string{"source": "env", "variable": base},
	}, nil
}

// HealthCheck always succeeds for the environment provider
func (p *EnvProvider) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the environment provider
func (p *EnvProvider) Close() error {
	return nil
}

func envName(name string) string {
	r := strings.NewReplacer("-", "_", "/", "_", ".", "_")
	return strings.ToUpper(r.Replace(name))
}
