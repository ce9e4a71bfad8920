package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"go.uber.org/zap"
)

// AWSProviderConfig holds configuration for the AWS Secrets Manager provider
type AWSProviderConfig struct {
	// Region is the AWS region
	Region string
	// Endpoint overrides the service endpoint (e.g. a localstack URL)
	Endpoint string
	// Prefix is prepended to secret names, e.g. "avauthz/keys/"
	Prefix string
	// Logger is the logger instance
	Logger *zap.Logger
}

// AWSProvider reads secrets from AWS Secrets Manager. A secret whose
// SecretString holds a JSON object is split into keys; any other string is
// stored under the "value" key.
type AWSProvider struct {
	api    secretsmanageriface.SecretsManagerAPI
	prefix string
	logger *zap.Logger
}

// NewAWSProvider creates a provider backed by a new AWS session
func NewAWSProvider(cfg *AWSProviderConfig) (*AWSProvider, error) {
	if cfg == nil || cfg.Region == "" {
		return nil, fmt.Errorf("%w: aws region is required", ErrProviderNotConfigured)
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	return NewAWSProviderWithClient(secretsmanager.New(sess), cfg.Prefix, cfg.Logger), nil
}

// NewAWSProviderWithClient creates a provider around an existing client
func NewAWSProviderWithClient(api secretsmanageriface.SecretsManagerAPI, prefix string, logger *zap.Logger) *AWSProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AWSProvider{api: api, prefix: prefix, logger: logger}
}

// Type returns the provider type
func (p *AWSProvider) Type() ProviderType {
	return ProviderTypeAWS
}

// GetSecret retrieves the current version of a secret
func (p *AWSProvider) GetSecret(ctx context.Context, name string) (*Secret, error) {
	start := time.Now()

	if name == "" {
		RecordOperation(p.Type(), "get", time.Since(start), ErrInvalidPath)
		return nil, ErrInvalidPath
	}

	id := p.prefix + name
	out, err := p.api.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		RecordOperation(p.Type(), "get", time.Since(start), err)
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == secretsmanager.ErrCodeResourceNotFoundException {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, id)
		}
		p.logger.Error("Failed to read secret from AWS",
			zap.String("secret_id", id),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to read secret %s: %w", id, err)
	}

	var data map[string][]byte
	switch {
	case out.SecretString != nil:
		var raw map[string]interface{}
		if json.Unmarshal([]byte(*out.SecretString), &raw) == nil {
			data = flatten(raw, json.Marshal)
		} else {
			data = map[string][]byte{"value": []byte(*out.SecretString)}
		}
	case out.SecretBinary != nil:
		data = map[string][]byte{"value": out.SecretBinary}
	default:
		err := fmt.Errorf("%w: %s has no value", ErrSecretNotFound, id)
		RecordOperation(p.Type(), "get", time.Since(start), err)
		return nil, err
	}

	secret := &Secret{
		Name:     name,
		Data:     data,
		Metadata: map[string]string{"source": "aws", "secret_id": id, "version": aws.StringValue(out.VersionId)},
	}
	if out.CreatedDate != nil {
		created := *out.CreatedDate
		secret.UpdatedAt = &created
	}

	RecordOperation(p.Type(), "get", time.Since(start), nil)
	return secret, nil
}

// HealthCheck lists at most one secret to confirm credentials and connectivity
func (p *AWSProvider) HealthCheck(ctx context.Context) error {
	_, err := p.api.ListSecretsWithContext(ctx, &secretsmanager.ListSecretsInput{
		MaxResults: aws.Int64(1),
	})
	return err
}

// Close is a no-op for the AWS provider
func (p *AWSProvider) Close() error {
	return nil
}
