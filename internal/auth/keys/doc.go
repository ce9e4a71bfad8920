// Package keys supplies the asymmetric key pair used to sign and verify
// tokens. Exactly one key pair exists per deployment environment; the active
// environment is read from AUTHZ_ENV (falling back to APP_ENV, then
// "development") each time it is needed.
//
// Key material lives in a secrets.Provider under "<prefix><environment>" with
// the fields private_key (PEM, required), public_key (PEM, optional) and kid
// (optional). A key pair loads once per environment; missing material is a
// configuration error that stays cached for the life of the provider, while a
// failure to reach the secrets backend is retried on the next call.
package keys
