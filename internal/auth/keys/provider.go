package keys

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/vyrodovalexey/avauthz/internal/observability"
	"github.com/vyrodovalexey/avauthz/internal/secrets"
)

// Secret fields holding key material.
const (
	FieldPrivateKey = "private_key"
	FieldPublicKey  = "public_key"
	FieldKeyID      = "kid"
)

// DefaultSecretPrefix is prepended to the environment name to form the
// secret name.
const DefaultSecretPrefix = "avauthz-signing-"

// Provider resolves the key pair of a deployment environment.
type Provider interface {
	// KeyFor returns the key pair of env, loading it on first use.
	KeyFor(ctx context.Context, env Environment) (*KeyPair, error)

	// Active returns the key pair of the ambient environment.
	Active(ctx context.Context) (*KeyPair, error)
}

// LoadHook is called once for every successfully loaded key pair.
type LoadHook func(ctx context.Context, pair *KeyPair)

// entry holds the load result of one environment. Once done is set the
// result is final.
type entry struct {
	mu   sync.Mutex
	done bool
	pair *KeyPair
	err  error
}

// secretProvider loads key pairs from a secrets.Provider.
type secretProvider struct {
	secrets secrets.Provider
	prefix  string
	lookup  func(string) (string, bool)
	logger  observability.Logger
	onLoad  LoadHook

	mu      sync.Mutex
	entries map[Environment]*entry
}

var _ Provider = (*secretProvider)(nil)

// ProviderOption is a functional option for the provider.
type ProviderOption func(*secretProvider)

// WithLogger sets the logger for the provider.
func WithLogger(logger observability.Logger) ProviderOption {
	return func(p *secretProvider) {
		p.logger = logger
	}
}

// WithSecretPrefix overrides DefaultSecretPrefix.
func WithSecretPrefix(prefix string) ProviderOption {
	return func(p *secretProvider) {
		p.prefix = prefix
	}
}

// WithEnvLookup replaces os.LookupEnv when resolving the active environment.
func WithEnvLookup(lookup func(string) (string, bool)) ProviderOption {
	return func(p *secretProvider) {
		p.lookup = lookup
	}
}

// WithLoadHook registers a callback for loaded key pairs.
func WithLoadHook(hook LoadHook) ProviderOption {
	return func(p *secretProvider) {
		p.onLoad = hook
	}
}

// NewProvider creates a Provider backed by store.
func NewProvider(store secrets.Provider, opts ...ProviderOption) Provider {
	p := &secretProvider{
		secrets: store,
		prefix:  DefaultSecretPrefix,
		logger:  observability.NopLogger(),
		entries: make(map[Environment]*entry),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.lookup == nil {
		p.lookup = os.LookupEnv
	}
	return p
}

// Active returns the key pair of the environment named by the ambient flag.
func (p *secretProvider) Active(ctx context.Context) (*KeyPair, error) {
	env, err := activeEnvironment(p.lookup)
	if err != nil {
		return nil, newKeyError(env, "cannot resolve active environment", err)
	}
	return p.KeyFor(ctx, env)
}

// KeyFor returns the key pair of env. Concurrent first calls share a single
// load. A loaded pair and configuration errors are kept; failures of the
// secrets backend are retried by the next call.
func (p *secretProvider) KeyFor(ctx context.Context, env Environment) (*KeyPair, error) {
	parsed, err := ParseEnvironment(string(env))
	if err != nil {
		return nil, newKeyError(env, "cannot load key pair", err)
	}
	env = parsed

	p.mu.Lock()
	e, ok := p.entries[env]
	if !ok {
		e = &entry{}
		p.entries[env] = e
	}
	p.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return e.pair, e.err
	}

	pair, err := p.load(context.WithoutCancel(ctx), env)
	if errors.Is(err, ErrKeySourceUnavailable) {
		return nil, err
	}
	e.pair, e.err, e.done = pair, err, true
	return pair, err
}

func (p *secretProvider) load(ctx context.Context, env Environment) (*KeyPair, error) {
	start := time.Now()
	name := p.prefix + string(env)

	if p.secrets == nil {
		return nil, newKeyError(env, "no secrets provider configured", ErrKeyMaterialMissing)
	}

	secret, err := p.secrets.GetSecret(ctx, name)
	if err != nil {
		p.logger.Error("failed to read signing key",
			observability.String("environment", env.String()),
			observability.String("secret", name),
			observability.Error(err),
		)
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return nil, newKeyError(env, "secret "+name+" not found", errors.Join(ErrKeyMaterialMissing, err))
		}
		return nil, newKeyError(env, "cannot read secret "+name, errors.Join(ErrKeySourceUnavailable, err))
	}

	privatePEM, ok := secret.GetBytes(FieldPrivateKey)
	if !ok || len(privatePEM) == 0 {
		return nil, newKeyError(env, "secret "+name+" has no "+FieldPrivateKey, ErrKeyMaterialMissing)
	}
	publicPEM, _ := secret.GetBytes(FieldPublicKey)
	kid, _ := secret.GetString(FieldKeyID)

	pair, err := ParseKeyPair(env, privatePEM, publicPEM, kid)
	if err != nil {
		return nil, err
	}

	p.logger.Info("signing key loaded",
		observability.String("environment", env.String()),
		observability.String("kid", pair.KeyID),
		observability.String("algorithm", pair.Algorithm),
		observability.String("source", string(p.secrets.Type())),
		observability.Duration("duration", time.Since(start)),
	)
	if p.onLoad != nil {
		p.onLoad(ctx, pair)
	}
	return pair, nil
}
