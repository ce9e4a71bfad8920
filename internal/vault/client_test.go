package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthz/internal/observability"
)

func newFakeVault(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[]}`))
	})
	mux.HandleFunc("/v1/secret/data/authz/production", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "root-token" && r.Header.Get("X-Vault-Token") != "approle-token" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"data":     map[string]any{"private_key": "pem-data", "kid": "prod-1"},
				"metadata": map[string]any{"version": 3},
			},
		})
	})
	mux.HandleFunc("/v1/secret/data/authz/deleted", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"data": nil, "metadata": map[string]any{"deletion_time": "now"}},
		})
	})
	mux.HandleFunc("/v1/kv/authz/staging", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"private_key": "v1-pem"},
		})
	})
	mux.HandleFunc("/v1/auth/approle/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["role_id"] != "role" || body["secret_id"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errors":["invalid role or secret ID"]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"auth": map[string]any{"client_token": "approle-token", "lease_duration": 3600},
		})
	})
	mux.HandleFunc("/v1/sys/health", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"initialized": true, "sealed": false, "standby": false})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "token", config: Config{Address: "http://v", Token: "t"}},
		{name: "missing address", config: Config{Token: "t"}, wantErr: true},
		{name: "missing token", config: Config{Address: "http://v"}, wantErr: true},
		{name: "unknown method", config: Config{Address: "http://v", AuthMethod: "kubernetes"}, wantErr: true},
		{name: "approle without ids", config: Config{Address: "http://v", AuthMethod: AuthMethodAppRole}, wantErr: true},
		{name: "approle", config: Config{Address: "http://v", AuthMethod: AuthMethodAppRole, AppRole: &AppRoleConfig{RoleID: "r", SecretID: "s"}}},
		{name: "bad kv version", config: Config{Address: "http://v", Token: "t", KVVersion: 3}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestClient_ReadKV(t *testing.T) {
	t.Parallel()

	srv := newFakeVault(t)
	ctx := context.Background()

	client, err := New(ctx, &Config{Address: srv.URL, Token: "root-token"}, observability.NopLogger())
	require.NoError(t, err)
	defer client.Close()

	data, err := client.ReadKV(ctx, "/authz/production")
	require.NoError(t, err)
	assert.Equal(t, "pem-data", data["private_key"])
	assert.Equal(t, "prod-1", data["kid"])

	_, err = client.ReadKV(ctx, "authz/missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	_, err = client.ReadKV(ctx, "authz/deleted")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	_, err = client.ReadKV(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidPath)

	assert.NoError(t, client.Health(ctx))
}

func TestClient_ReadKVv1(t *testing.T) {
	t.Parallel()

	srv := newFakeVault(t)
	ctx := context.Background()

	client, err := New(ctx, &Config{Address: srv.URL, Token: "root-token", Mount: "kv", KVVersion: 1}, nil)
	require.NoError(t, err)

	data, err := client.ReadKV(ctx, "authz/staging")
	require.NoError(t, err)
	assert.Equal(t, "v1-pem", data["private_key"])
}

func TestClient_AppRole(t *testing.T) {
	t.Parallel()

	srv := newFakeVault(t)
	ctx := context.Background()

	client, err := New(ctx, &Config{
		Address:    srv.URL,
		AuthMethod: AuthMethodAppRole,
		AppRole:    &AppRoleConfig{RoleID: "role", SecretID: "secret"},
	}, nil)
	require.NoError(t, err)

	data, err := client.ReadKV(ctx, "authz/production")
	require.NoError(t, err)
	assert.Equal(t, "pem-data", data["private_key"])

	_, err = New(ctx, &Config{
		Address:    srv.URL,
		AuthMethod: AuthMethodAppRole,
		AppRole:    &AppRoleConfig{RoleID: "role", SecretID: "wrong"},
		MaxRetries: 1,
	}, nil)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}
