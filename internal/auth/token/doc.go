// Package token issues, verifies, parses and refreshes the signed tokens that
// carry a subject's identity and effective permissions.
//
// Tokens are JWTs in compact serialization, signed with the asymmetric key of
// the active environment (see package keys). Verification never returns raw
// library errors; callers receive a VerificationResult whose ErrorKind is one
// of a closed set.
package token
