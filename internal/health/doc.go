// Package health provides liveness and readiness endpoints for the
// authorization service.
//
// Dependencies are registered as checks. A failing critical check makes
// the service unready; a failing non-critical check only degrades it.
// Once Drain is called readiness reports unavailable so that load
// balancers stop routing new requests before shutdown.
//
//	h := health.NewHandler(version, logger)
//	h.AddCheck(health.SQLCheck("database", db))
//	h.AddCheck(health.CacheCheck("cache", c, health.WithCritical(false)))
//	h.RegisterRoutes(router)
package health
