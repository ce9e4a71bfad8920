package keys

import (
	"errors"
	"fmt"
)

// Sentinel errors for key loading.
var (
	// ErrKeyMaterialMissing indicates no key material exists for an environment.
	ErrKeyMaterialMissing = errors.New("key material missing")

	// ErrInvalidKey indicates the key material could not be parsed.
	ErrInvalidKey = errors.New("invalid key material")

	// ErrKeyMismatch indicates the configured public key does not belong to
	// the private key.
	ErrKeyMismatch = errors.New("public key does not match private key")

	// ErrUnsupportedKeyType indicates a key type with no signing algorithm.
	ErrUnsupportedKeyType = errors.New("unsupported key type")

	// ErrInvalidEnvironment indicates an environment name that cannot be
	// used as a secret name.
	ErrInvalidEnvironment = errors.New("invalid environment")

	// ErrKeySourceUnavailable indicates the secrets backend could not be
	// read. Unlike the errors above it is not cached.
	ErrKeySourceUnavailable = errors.New("key source unavailable")
)

// KeyError describes a failure to load the key pair of an environment.
type KeyError struct {
	Environment Environment
	Message     string
	Cause       error
}

// Error implements the error interface.
func (e *KeyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("keys: environment %q: %s: %v", e.Environment, e.Message, e.Cause)
	}
	return fmt.Sprintf("keys: environment %q: %s", e.Environment, e.Message)
}

// Unwrap returns the underlying error.
func (e *KeyError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *KeyError) Is(target error) bool {
	_, ok := target.(*KeyError)
	return ok || errors.Is(e.Cause, target)
}

func newKeyError(env Environment, message string, cause error) *KeyError {
	return &KeyError{Environment: env, Message: message, Cause: cause}
}
