// Package store persists role permission rules and resolves them into the
// permission sets carried by tokens and evaluated by the rbac engine.
//
// A rule grants or denies one METHOD:PATTERN descriptor to a role. Stores
// compose: a SQLStore is usually wrapped in a BreakerStore so that a failing
// database fails fast, and in a CachedStore so that lookups by role are
// served from memory or Redis.
package store
