// Package cache provides the byte-oriented cache used to keep resolved
// permission rules close to the request path.
//
// Two backends are available behind the Cache interface:
//
//   - an in-memory LRU with per-entry TTL, for single-instance deployments;
//   - Redis (standalone or Sentinel) shared by all instances, with retry on
//     transient errors and optional TTL jitter.
//
// The Redis password can be read from the secrets provider so that it never
// appears in configuration files.
//
// All implementations are safe for concurrent use.
package cache
