package keys

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// JWKS returns the public keys of envs as a JSON Web Key Set. With no envs the
// active environment is used.
func JWKS(ctx context.Context, p Provider, envs ...Environment) (jwk.Set, error) {
	var pairs []*KeyPair
	if len(envs) == 0 {
		pair, err := p.Active(ctx)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	for _, env := range envs {
		pair, err := p.KeyFor(ctx, env)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}

	set := jwk.NewSet()
	for _, pair := range pairs {
		key, err := PublicJWK(pair)
		if err != nil {
			return nil, err
		}
		if err := set.AddKey(key); err != nil {
			return nil, fmt.Errorf("failed to add key %s: %w", pair.KeyID, err)
		}
	}
	return set, nil
}

// PublicJWK converts the verification key of pair to a JWK.
func PublicJWK(pair *KeyPair) (jwk.Key, error) {
	key, err := jwk.FromRaw(pair.VerificationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to convert key %s: %w", pair.KeyID, err)
	}
	if err := key.Set(jwk.KeyIDKey, pair.KeyID); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.SignatureAlgorithm(pair.Algorithm)); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, err
	}
	return key, nil
}
