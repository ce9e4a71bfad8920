package config

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthz/internal/audit"
	"github.com/vyrodovalexey/avauthz/internal/authz/rbac"
)

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAuditor) Log(_ context.Context, e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func TestPolicyReloader(t *testing.T) {
	t.Parallel()

	engine, err := rbac.NewEngine(rbac.DefaultConfig())
	require.NoError(t, err)
	auditor := &recordingAuditor{}
	reload := PolicyReloader(engine, auditor, nil)

	viewer := &rbac.Subject{ID: "u1", Role: "Guest"}
	assert.False(t, engine.Decide(viewer, "GET", "/v1/apps"))

	cfg := DefaultConfig()
	cfg.Policy.AdminRole = "Guest"
	reload(cfg)

	assert.Equal(t, "Guest", engine.Config().AdminRole)
	assert.True(t, engine.Decide(viewer, "GET", "/v1/apps"))

	require.Len(t, auditor.events, 1)
	e := auditor.events[0]
	assert.Equal(t, audit.EventConfigReloaded, e.Type)
	assert.Equal(t, audit.SeverityMedium, e.Severity)
	assert.Equal(t, "Guest", e.ContextString("adminRole"))
	assert.Equal(t, "deny", e.ContextString("previousDefaultPolicy"))
}

func TestPolicyReloader_RejectsInvalid(t *testing.T) {
	t.Parallel()

	engine, err := rbac.NewEngine(rbac.DefaultConfig())
	require.NoError(t, err)
	auditor := &recordingAuditor{}

	cfg := DefaultConfig()
	cfg.Policy.DefaultPolicy = "maybe"
	PolicyReloader(engine, auditor, nil)(cfg)

	assert.Equal(t, rbac.EffectDeny, engine.Config().DefaultPolicy)
	assert.Empty(t, auditor.events)

	// A nil auditor only skips the event.
	PolicyReloader(engine, nil, nil)(DefaultConfig())
}
