package keys

import (
	"context"
	"os"
)

// staticProvider serves key pairs held in memory.
type staticProvider struct {
	pairs  map[Environment]*KeyPair
	lookup func(string) (string, bool)
}

var _ Provider = (*staticProvider)(nil)

// NewStaticProvider returns a Provider over fixed key pairs. The active
// environment is still resolved from the ambient flag unless lookup is set.
func NewStaticProvider(lookup func(string) (string, bool), pairs ...*KeyPair) Provider {
	p := &staticProvider{
		pairs:  make(map[Environment]*KeyPair, len(pairs)),
		lookup: lookup,
	}
	if p.lookup == nil {
		p.lookup = os.LookupEnv
	}
	for _, pair := range pairs {
		if pair != nil {
			p.pairs[pair.Environment] = pair
		}
	}
	return p
}

// FixedEnvironment returns a lookup function that always names env.
func FixedEnvironment(env Environment) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if key == EnvVarAuthzEnv {
			return string(env), true
		}
		return "", false
	}
}

func (p *staticProvider) KeyFor(_ context.Context, env Environment) (*KeyPair, error) {
	pair, ok := p.pairs[env]
	if !ok {
		return nil, newKeyError(env, "no static key pair", ErrKeyMaterialMissing)
	}
	return pair, nil
}

func (p *staticProvider) Active(ctx context.Context) (*KeyPair, error) {
	env, err := activeEnvironment(p.lookup)
	if err != nil {
		return nil, newKeyError(env, "cannot resolve active environment", err)
	}
	return p.KeyFor(ctx, env)
}
