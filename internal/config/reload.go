package config

import (
	"context"

	"github.com/vyrodovalexey/avauthz/internal/audit"
	"github.com/vyrodovalexey/avauthz/internal/authz/rbac"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// Auditor receives audit events. *audit.Pipeline implements it.
type Auditor interface {
	Log(ctx context.Context, event audit.Event)
}

// PolicyReloader returns a callback that swaps the engine's policy section
// and records a ConfigReloaded event. Other sections need a restart.
func PolicyReloader(engine rbac.Engine, auditor Auditor, logger observability.Logger) ConfigCallback {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return func(cfg *Config) {
		previous := engine.Config()
		if err := engine.UpdateConfig(cfg.Policy); err != nil {
			logger.Error("policy reload rejected", observability.Error(err))
			return
		}

		logger.Info("policy configuration applied",
			observability.String("defaultPolicy", string(cfg.Policy.DefaultPolicy)),
			observability.String("adminRole", cfg.Policy.AdminRole),
		)
		if auditor == nil {
			return
		}

		event := audit.NewEvent(audit.EventConfigReloaded, audit.SeverityMedium, "policy configuration reloaded").
			With("defaultPolicy", string(cfg.Policy.DefaultPolicy)).
			With("adminRole", cfg.Policy.AdminRole).
			WithTags("config")
		if previous != nil {
			event = event.With("previousDefaultPolicy", string(previous.DefaultPolicy))
		}
		auditor.Log(context.Background(), event)
	}
}
