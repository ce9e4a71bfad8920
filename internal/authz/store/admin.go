package store

import (
	"context"

	"github.com/vyrodovalexey/avauthz/internal/audit"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// Auditor receives audit events. *audit.Pipeline implements it.
type Auditor interface {
	Log(ctx context.Context, event audit.Event)
}

// Actor identifies who changes a rule.
type Actor struct {
	SubjectID string
	Role      string
}

// Admin performs rule writes on behalf of an actor and audits each change.
type Admin struct {
	store   Store
	auditor Auditor
	logger  observability.Logger
}

// NewAdmin creates an Admin. A nil auditor disables auditing.
func NewAdmin(s Store, auditor Auditor, logger observability.Logger) *Admin {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Admin{store: s, auditor: auditor, logger: logger}
}

// List returns the rules of role.
func (a *Admin) List(ctx context.Context, role string) ([]PermissionRule, error) {
	return a.store.FindByRole(ctx, role)
}

// Get returns one rule.
func (a *Admin) Get(ctx context.Context, id string) (PermissionRule, error) {
	return a.store.Get(ctx, id)
}

// Upsert saves rule and emits PermissionCreated or PermissionUpdated.
func (a *Admin) Upsert(ctx context.Context, actor Actor, rule PermissionRule) (PermissionRule, bool, error) {
	saved, created, err := a.store.Upsert(ctx, rule)
	if err != nil {
		return PermissionRule{}, false, err
	}

	eventType, result := audit.EventPermissionUpdated, "updated"
	if created {
		eventType, result = audit.EventPermissionCreated, "created"
	}
	a.emit(ctx, audit.NewEvent(eventType, audit.SeverityMedium, "permission rule "+result), actor, saved, result)

	a.logger.WithContext(ctx).Info("permission rule saved",
		observability.String("id", saved.ID),
		observability.String("role", saved.Role),
		observability.String("descriptor", saved.Descriptor()),
		observability.String("access", string(saved.Access)),
		observability.Bool("created", created),
	)
	return saved, created, nil
}

// Delete removes the rule with id and emits PermissionDeleted.
func (a *Admin) Delete(ctx context.Context, actor Actor, id string) (PermissionRule, error) {
	deleted, err := a.store.Delete(ctx, id)
	if err != nil {
		return PermissionRule{}, err
	}

	a.emit(ctx, audit.NewEvent(audit.EventPermissionDeleted, audit.SeverityHigh, "permission rule deleted"),
		actor, deleted, "deleted")

	a.logger.WithContext(ctx).Info("permission rule deleted",
		observability.String("id", deleted.ID),
		observability.String("role", deleted.Role),
	)
	return deleted, nil
}

func (a *Admin) emit(ctx context.Context, e audit.Event, actor Actor, rule PermissionRule, result string) {
	if a.auditor == nil {
		return
	}
	a.auditor.Log(ctx, e.
		WithSubject(actor.SubjectID, actor.Role).
		WithAction(rule.Descriptor(), rule.ID, result).
		With("ruleRole", rule.Role).
		With("access", string(rule.Access)).
		WithTags("permissions"))
}
