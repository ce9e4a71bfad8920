// Package middleware provides the HTTP middleware of the authorization
// service.
//
// # Middleware Components
//
//   - Guard: bearer token verification and policy enforcement
//   - Logging: structured access logging
//   - Recovery: panic recovery with stack trace logging
//   - Rate Limiting: per-client token bucket rate limiter
//   - Request ID: unique request identifier injection
//   - Client IP: trusted proxy-aware client IP extraction
//
// # Usage
//
// Middleware functions follow the standard Go pattern:
//
//	handler := middleware.Recovery(logger)(
//	    middleware.RequestID()(
//	        middleware.Logging(logger)(guard.Handler(yourHandler)),
//	    ),
//	)
//
// Guard also exposes a gin adapter for route groups:
//
//	v1 := router.Group("/v1", guard.Gin())
package middleware
