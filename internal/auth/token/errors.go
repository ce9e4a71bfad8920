package token

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed verification.
type ErrorKind string

// Verification failure kinds. The set is closed.
const (
	KindTokenExpired     ErrorKind = "TokenExpired"
	KindTokenNotYetValid ErrorKind = "TokenNotYetValid"
	KindInvalidSignature ErrorKind = "InvalidSignature"
	KindMalformedToken   ErrorKind = "MalformedToken"
	KindInvalidToken     ErrorKind = "InvalidToken"
)

// Sentinel errors for token operations.
var (
	// ErrInvalidDuration indicates an expiry string outside <digits>[s|m|h|d].
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrMissingClaim indicates a required claim was not provided.
	ErrMissingClaim = errors.New("required claim is missing")

	// ErrCannotRefreshInvalidToken indicates Refresh was given a token that
	// does not verify.
	ErrCannotRefreshInvalidToken = errors.New("cannot refresh invalid token")

	// ErrTokenExpired indicates the token is past its expiry.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenNotYetValid indicates the token's not-before time is in the future.
	ErrTokenNotYetValid = errors.New("token is not yet valid")

	// ErrInvalidSignature indicates the signature or algorithm did not check out.
	ErrInvalidSignature = errors.New("token signature is invalid")

	// ErrMalformedToken indicates the token could not be decoded.
	ErrMalformedToken = errors.New("token is malformed")

	// ErrInvalidToken covers every other verification failure.
	ErrInvalidToken = errors.New("token is invalid")

	// ErrSigningFailed indicates the token could not be signed.
	ErrSigningFailed = errors.New("token signing failed")
)

// Err returns the sentinel error for k.
func (k ErrorKind) Err() error {
	switch k {
	case KindTokenExpired:
		return ErrTokenExpired
	case KindTokenNotYetValid:
		return ErrTokenNotYetValid
	case KindInvalidSignature:
		return ErrInvalidSignature
	case KindMalformedToken:
		return ErrMalformedToken
	default:
		return ErrInvalidToken
	}
}

// ValidationError reports why a token was rejected.
type ValidationError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("token validation error: %s (%s): %v", e.Message, e.Kind, e.Cause)
	}
	return fmt.Sprintf("token validation error: %s (%s)", e.Message, e.Kind)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target. A ValidationError also matches
// the sentinel of its kind.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return target == e.Kind.Err() || errors.Is(e.Cause, target)
}
