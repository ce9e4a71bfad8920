package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthz/internal/vault"
)

func TestSecret_Getters(t *testing.T) {
	t.Parallel()

	s := &Secret{Data: map[string][]byte{"k": []byte("v")}}
	v, ok := s.GetString("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok = s.GetBytes("missing")
	assert.False(t, ok)

	var nilSecret *Secret
	_, ok = nilSecret.GetString("k")
	assert.False(t, ok)
}

func TestValidateProviderType(t *testing.T) {
	t.Parallel()

	for _, p := range []string{"env", "local", "vault", "aws"} {
		got, err := ValidateProviderType(p)
		require.NoError(t, err)
		assert.Equal(t, ProviderType(p), got)
	}

	_, err := ValidateProviderType("kubernetes")
	assert.ErrorIs(t, err, ErrInvalidProviderType)
}

func TestRegisterMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.NoError(t, RegisterMetrics(reg))
}

func TestEnvProvider_GetSecret(t *testing.T) {
	t.Parallel()

	env := []string{
		"AUTHZ_KEYS_PRODUCTION_PRIVATE_KEY=prod-private",
		"AUTHZ_KEYS_PRODUCTION_KID=prod-1",
		`AUTHZ_KEYS_STAGING={"private_key":"staging-private","rotation":2}`,
		"AUTHZ_KEYS_STAGING_KID=staging-kid",
		"AUTHZ_KEYS_BROKEN=not-json",
		"UNRELATED=1",
		"MALFORMED",
	}
	p := NewEnvProvider(&EnvProviderConfig{
		Prefix:  "authz_keys_",
		Environ: func() []string { return env },
	})
	ctx := context.Background()

	assert.Equal(t, ProviderTypeEnv, p.Type())

	secret, err := p.GetSecret(ctx, "production")
	require.NoError(t, err)
	v, _ := secret.GetString("private_key")
	assert.Equal(t, "prod-private", v)
	v, _ = secret.GetString("kid")
	assert.Equal(t, "prod-1", v)

	secret, err = p.GetSecret(ctx, "staging")
	require.NoError(t, err)
	v, _ = secret.GetString("private_key")
	assert.Equal(t, "staging-private", v)
	v, _ = secret.GetString("rotation")
	assert.Equal(t, "2", v)
	v, _ = secret.GetString("kid")
	assert.Equal(t, "staging-kid", v)

	_, err = p.GetSecret(ctx, "broken")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	_, err = p.GetSecret(ctx, "development")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	_, err = p.GetSecret(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidPath)

	assert.NoError(t, p.HealthCheck(ctx))
	assert.NoError(t, p.Close())
}

func TestLocalProvider(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "production"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(base, "production", "private_key.pem"), []byte("pem\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(base, "production", "kid"), []byte("prod-1\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(base, "staging.yaml"), []byte("private_key: yaml-pem\nrotation: 3\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(base, "qa.json"), []byte(`{"private_key":"json-pem"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(base, "bad.json"), []byte(`{`), 0o600))

	p, err := NewLocalProvider(&LocalProviderConfig{BasePath: base})
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name    string
		secret  string
		key     string
		want    string
		wantErr error
	}{
		{name: "directory layout", secret: "production", key: "private_key", want: "pem"},
		{name: "directory key without extension", secret: "production", key: "kid", want: "prod-1"},
		{name: "yaml file", secret: "staging", key: "private_key", want: "yaml-pem"},
		{name: "yaml non-string value", secret: "staging", key: "rotation", want: "3"},
		{name: "json file", secret: "qa", key: "private_key", want: "json-pem"},
		{name: "missing", secret: "development", wantErr: ErrSecretNotFound},
		{name: "traversal", secret: "../etc", wantErr: ErrInvalidPath},
		{name: "empty", secret: "", wantErr: ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			secret, err := p.GetSecret(ctx, tt.secret)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			got, ok := secret.GetString(tt.key)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = p.GetSecret(ctx, "bad")
	assert.ErrorContains(t, err, "failed to parse")
	assert.NoError(t, p.HealthCheck(ctx))
}

func TestNewLocalProvider_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewLocalProvider(nil)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	_, err = NewLocalProvider(&LocalProviderConfig{BasePath: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = NewLocalProvider(&LocalProviderConfig{BasePath: file})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

type fakeVaultClient struct {
	data map[string]map[string]interface{}
	err  error
}

func (f *fakeVaultClient) ReadKV(_ context.Context, path string) (map[string]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.data[path]
	if !ok {
		return nil, vault.NewVaultError("kv_read", path, vault.ErrSecretNotFound)
	}
	return d, nil
}

func (f *fakeVaultClient) Health(_ context.Context) error { return f.err }
func (f *fakeVaultClient) Close() error                   { return nil }

func TestVaultProvider(t *testing.T) {
	t.Parallel()

	client := &fakeVaultClient{data: map[string]map[string]interface{}{
		"avauthz/keys/production": {"private_key": "pem", "version": 3},
	}}
	p, err := NewVaultProvider(client, "avauthz/keys/", nil)
	require.NoError(t, err)
	ctx := context.Background()

	secret, err := p.GetSecret(ctx, "production")
	require.NoError(t, err)
	v, _ := secret.GetString("private_key")
	assert.Equal(t, "pem", v)
	v, _ = secret.GetString("version")
	assert.Equal(t, "3", v)
	assert.Equal(t, "avauthz/keys/production", secret.Metadata["path"])

	_, err = p.GetSecret(ctx, "staging")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	_, err = p.GetSecret(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidPath)

	boom := errors.New("connection refused")
	failing, err := NewVaultProvider(&fakeVaultClient{err: boom}, "", nil)
	require.NoError(t, err)
	_, err = failing.GetSecret(ctx, "production")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, failing.HealthCheck(ctx), boom)

	_, err = NewVaultProvider(nil, "", nil)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

type fakeSecretsManager struct {
	secretsmanageriface.SecretsManagerAPI
	values map[string]*secretsmanager.GetSecretValueOutput
}

func (f *fakeSecretsManager) GetSecretValueWithContext(
	_ aws.Context,
	in *secretsmanager.GetSecretValueInput,
	_ ...request.Option,
) (*secretsmanager.GetSecretValueOutput, error) {
	out, ok := f.values[aws.StringValue(in.SecretId)]
	if !ok {
		return nil, awserr.New(secretsmanager.ErrCodeResourceNotFoundException, "not found", nil)
	}
	return out, nil
}

func (f *fakeSecretsManager) ListSecretsWithContext(
	_ aws.Context,
	_ *secretsmanager.ListSecretsInput,
	_ ...request.Option,
) (*secretsmanager.ListSecretsOutput, error) {
	return &secretsmanager.ListSecretsOutput{}, nil
}

func TestAWSProvider(t *testing.T) {
	t.Parallel()

	api := &fakeSecretsManager{values: map[string]*secretsmanager.GetSecretValueOutput{
		"avauthz/production": {
			SecretString: aws.String(`{"private_key":"aws-pem","kid":"k1"}`),
			VersionId:    aws.String("v1"),
		},
		"avauthz/plain":  {SecretString: aws.String("just-a-value")},
		"avauthz/binary": {SecretBinary: []byte{1, 2, 3}},
		"avauthz/empty":  {},
	}}
	p := NewAWSProviderWithClient(api, "avauthz/", nil)
	ctx := context.Background()

	assert.Equal(t, ProviderTypeAWS, p.Type())

	secret, err := p.GetSecret(ctx, "production")
	require.NoError(t, err)
	v, _ := secret.GetString("private_key")
	assert.Equal(t, "aws-pem", v)
	assert.Equal(t, "v1", secret.Metadata["version"])

	secret, err = p.GetSecret(ctx, "plain")
	require.NoError(t, err)
	v, _ = secret.GetString("value")
	assert.Equal(t, "just-a-value", v)

	secret, err = p.GetSecret(ctx, "binary")
	require.NoError(t, err)
	b, _ := secret.GetBytes("value")
	assert.Equal(t, []byte{1, 2, 3}, b)

	_, err = p.GetSecret(ctx, "empty")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	_, err = p.GetSecret(ctx, "missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{name: "env", config: Config{Provider: "env"}},
		{name: "unknown", config: Config{Provider: "k8s"}, wantErr: ErrInvalidProviderType},
		{name: "local without path", config: Config{Provider: "local"}, wantErr: ErrProviderNotConfigured},
		{name: "vault without section", config: Config{Provider: "vault"}, wantErr: ErrProviderNotConfigured},
		{name: "vault invalid", config: Config{Provider: "vault", Vault: &VaultConfig{}}, wantErr: vault.ErrInvalidConfig},
		{name: "aws without region", config: Config{Provider: "aws", AWS: &AWSConfig{}}, wantErr: ErrProviderNotConfigured},
		{name: "aws", config: Config{Provider: "aws", AWS: &AWSConfig{Region: "eu-west-1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.config.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	p, err := NewProvider(ctx, &Config{Provider: "env", Env: &EnvConfig{Prefix: "X_"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeEnv, p.Type())

	p, err = NewProvider(ctx, &Config{Provider: "local", Local: &LocalConfig{BasePath: t.TempDir()}}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeLocal, p.Type())

	_, err = NewProvider(ctx, nil, nil)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}
