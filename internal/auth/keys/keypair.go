package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Signing algorithms, named as in the JWS "alg" header.
const (
	AlgRS256 = "RS256"
	AlgES256 = "ES256"
	AlgES384 = "ES384"
	AlgES512 = "ES512"
	AlgEdDSA = "EdDSA"
)

// KeyPair is the signing and verification key of one environment.
type KeyPair struct {
	Environment     Environment
	KeyID           string
	Algorithm       string
	SigningKey      crypto.Signer
	VerificationKey crypto.PublicKey
}

// SigningMethod returns the golang-jwt signing method for the pair.
func (k *KeyPair) SigningMethod() jwt.SigningMethod {
	return jwt.GetSigningMethod(k.Algorithm)
}

// NewKeyPair builds a KeyPair from a private key. The algorithm is inferred
// from the key type and an empty kid is replaced by the key thumbprint.
func NewKeyPair(env Environment, signer crypto.Signer, kid string) (*KeyPair, error) {
	if signer == nil {
		return nil, newKeyError(env, "signing key is nil", ErrInvalidKey)
	}
	alg, err := algorithmFor(signer.Public())
	if err != nil {
		return nil, newKeyError(env, "cannot infer signing algorithm", err)
	}
	kid = strings.TrimSpace(kid)
	if kid == "" {
		kid, err = Thumbprint(signer.Public())
		if err != nil {
			return nil, newKeyError(env, "cannot compute key id", err)
		}
	}
	return &KeyPair{
		Environment:     env,
		KeyID:           kid,
		Algorithm:       alg,
		SigningKey:      signer,
		VerificationKey: signer.Public(),
	}, nil
}

// ParseKeyPair parses PEM encoded key material. publicPEM may be empty, in
// which case the public key is derived from the private key.
func ParseKeyPair(env Environment, privatePEM, publicPEM []byte, kid string) (*KeyPair, error) {
	signer, err := parsePrivateKey(normalizePEM(privatePEM))
	if err != nil {
		return nil, newKeyError(env, "cannot parse private key", err)
	}
	pair, err := NewKeyPair(env, signer, kid)
	if err != nil {
		return nil, err
	}

	if len(strings.TrimSpace(string(publicPEM))) == 0 {
		return pair, nil
	}
	pub, err := parsePublicKey(normalizePEM(publicPEM))
	if err != nil {
		return nil, newKeyError(env, "cannot parse public key", err)
	}
	if !publicKeysEqual(signer.Public(), pub) {
		return nil, newKeyError(env, "public key check failed", ErrKeyMismatch)
	}
	pair.VerificationKey = pub
	return pair, nil
}

// GenerateKeyPair creates a fresh key pair for alg.
func GenerateKeyPair(env Environment, alg string) (*KeyPair, error) {
	var (
		signer crypto.Signer
		err    error
	)
	switch alg {
	case AlgEdDSA, "":
		_, signer, err = ed25519.GenerateKey(rand.Reader)
	case AlgES256:
		signer, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case AlgES384:
		signer, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case AlgES512:
		signer, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	case AlgRS256:
		signer, err = rsa.GenerateKey(rand.Reader, 2048)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, alg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", alg, err)
	}
	return NewKeyPair(env, signer, "")
}

// EncodePrivateKeyPEM returns the private key as a PKCS#8 PEM block.
func EncodePrivateKeyPEM(k *KeyPair) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicKeyPEM returns the public key as a PKIX PEM block.
func EncodePublicKeyPEM(k *KeyPair) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(k.VerificationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// Thumbprint returns the base64url SHA-256 digest of the PKIX encoding of pub.
func Thumbprint(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(der)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

func algorithmFor(pub crypto.PublicKey) (string, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return AlgRS256, nil
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			return AlgES256, nil
		case elliptic.P384():
			return AlgES384, nil
		case elliptic.P521():
			return AlgES512, nil
		}
		return "", fmt.Errorf("%w: curve %s", ErrUnsupportedKeyType, k.Curve.Params().Name)
	case ed25519.PublicKey:
		return AlgEdDSA, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedKeyType, pub)
	}
}

// normalizePEM accepts PEM that was flattened into a single line with
// literal "\n" sequences, as is common for environment variables.
func normalizePEM(b []byte) []byte {
	s := strings.TrimSpace(string(b))
	if !strings.Contains(s, "\n") && strings.Contains(s, `\n`) {
		s = strings.ReplaceAll(s, `\n`, "\n")
	}
	return []byte(s)
}

func parsePrivateKey(b []byte) (crypto.Signer, error) {
	if len(b) == 0 {
		return nil, ErrKeyMaterialMissing
	}
	if rsaKey, err := jwt.ParseRSAPrivateKeyFromPEM(b); err == nil {
		return rsaKey, nil
	}
	if ecKey, err := jwt.ParseECPrivateKeyFromPEM(b); err == nil {
		return ecKey, nil
	}
	edKey, err := jwt.ParseEdPrivateKeyFromPEM(b)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	signer, ok := edKey.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKeyType, edKey)
	}
	return signer, nil
}

func parsePublicKey(b []byte) (crypto.PublicKey, error) {
	if rsaKey, err := jwt.ParseRSAPublicKeyFromPEM(b); err == nil {
		return rsaKey, nil
	}
	if ecKey, err := jwt.ParseECPublicKeyFromPEM(b); err == nil {
		return ecKey, nil
	}
	edKey, err := jwt.ParseEdPublicKeyFromPEM(b)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	return edKey, nil
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	eq, ok := a.(interface{ Equal(crypto.PublicKey) bool })
	return ok && eq.Equal(b)
}
