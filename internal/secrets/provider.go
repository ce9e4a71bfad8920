// Package secrets provides a read interface over the backends that hold
// signing key material: environment variables, local files, HashiCorp Vault
// and AWS Secrets Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderType represents the type of secrets provider
type ProviderType string

const (
	// ProviderTypeEnv uses environment variables as the backend
	ProviderTypeEnv ProviderType = "env"
	// ProviderTypeLocal uses local files as the backend
	ProviderTypeLocal ProviderType = "local"
	// ProviderTypeVault uses HashiCorp Vault as the backend
	ProviderTypeVault ProviderType = "vault"
	// ProviderTypeAWS uses AWS Secrets Manager as the backend
	ProviderTypeAWS ProviderType = "aws"
)

// Common errors for secrets providers
var (
	// ErrSecretNotFound is returned when a secret is not found
	ErrSecretNotFound = errors.New("secret not found")
	// ErrProviderNotConfigured is returned when the provider is not properly configured
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrInvalidPath is returned when the secret path is invalid
	ErrInvalidPath = errors.New("invalid secret path")
	// ErrInvalidProviderType is returned when an unknown provider type is specified
	ErrInvalidProviderType = errors.New("invalid provider type")
)

// Secret represents a secret with key-value data
type Secret struct {
	// Name is the name of the secret
	Name string
	// Data contains the secret key-value pairs
	Data map[string][]byte
	// Metadata contains additional metadata about the secret
	Metadata map[string]string
	// UpdatedAt is when the secret was last updated, if known
	UpdatedAt *time.Time
}

// GetString returns a string value from the secret data
func (s *Secret) GetString(key string) (string, bool) {
	v, ok := s.GetBytes(key)
	return string(v), ok
}

// GetBytes returns a byte slice value from the secret data
func (s *Secret) GetBytes(key string) ([]byte, bool) {
	if s == nil || s.Data == nil {
		return nil, false
	}
	v, ok := s.Data[key]
	return v, ok
}

// Provider is the interface for secrets providers
type Provider interface {
	// Type returns the provider type
	Type() ProviderType

	// GetSecret retrieves a secret by name. Name format depends on the provider:
	// - env: "production" (maps to PREFIX_PRODUCTION_* variables)
	// - local: "production" (maps to base-path/production/ or production.yaml)
	// - vault: "authz/production" (relative to the KV mount)
	// - aws: "production" (prefixed with the configured secret prefix)
	GetSecret(ctx context.Context, name string) (*Secret, error)

	// HealthCheck checks provider connectivity
	HealthCheck(ctx context.Context) error

	// Close cleans up provider resources
	Close() error
}

// Prometheus metrics for secrets provider operations
var (
	secretsOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "avauthz",
			Subsystem: "secrets",
			Name:      "operation_duration_seconds",
			Help:      "Duration of secrets provider operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation", "result"},
	)

	secretsOperationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "avauthz",
			Subsystem: "secrets",
			Name:      "operation_total",
			Help:      "Total number of secrets provider operations",
		},
		[]string{"provider", "operation", "result"},
	)
)

// RegisterMetrics registers the secrets metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{secretsOperationDuration, secretsOperationTotal} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}

// RecordOperation records metrics for a secrets provider operation
func RecordOperation(provider ProviderType, operation string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	secretsOperationDuration.WithLabelValues(string(provider), operation, result).Observe(duration.Seconds())
	secretsOperationTotal.WithLabelValues(string(provider), operation, result).Inc()
}

// ValidateProviderType validates that the given string is a valid provider type
func ValidateProviderType(providerType string) (ProviderType, error) {
	switch ProviderType(providerType) {
	case ProviderTypeEnv, ProviderTypeLocal, ProviderTypeVault, ProviderTypeAWS:
		return ProviderType(providerType), nil
	default:
		return "", fmt.Errorf("%w: %s, must be one of: env, local, vault, aws", ErrInvalidProviderType, providerType)
	}
}

// flatten converts decoded JSON/YAML values into secret data. Non-string
// values are re-encoded as JSON.
func flatten(raw map[string]interface{}, encode func(interface{}) ([]byte, error)) map[string][]byte {
	data := make(map[string][]byte, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			data[k] = []byte(val)
		case []byte:
			data[k] = val
		default:
			b, err := encode(val)
			if err != nil {
				continue
			}
			data[k] = b
		}
	}
	return data
}
