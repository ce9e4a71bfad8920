package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthz/internal/audit"
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

func (a *recordingAuditor) Events() []audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Event(nil), a.events...)
}

func TestAdmin_AuditsWrites(t *testing.T) {
	t.Parallel()

	auditor := &recordingAuditor{}
	admin := NewAdmin(NewMemoryStore(), auditor, nil)
	actor := Actor{SubjectID: "ops-1", Role: "Admin"}
	ctx := context.Background()

	rule := PermissionRule{Role: "viewer", Method: "GET", PathPattern: "/v1/apps/*", Access: AccessAllow}
	saved, created, err := admin.Upsert(ctx, actor, rule)
	require.NoError(t, err)
	assert.True(t, created)

	rule.Access = AccessDeny
	_, created, err = admin.Upsert(ctx, actor, rule)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = admin.Delete(ctx, actor, saved.ID)
	require.NoError(t, err)

	events := auditor.Events()
	require.Len(t, events, 3)

	assert.Equal(t, audit.EventPermissionCreated, events[0].Type)
	assert.Equal(t, audit.SeverityMedium, events[0].Severity)
	assert.Equal(t, "ops-1", events[0].ContextString(audit.ContextSubject))
	assert.Equal(t, "Admin", events[0].ContextString(audit.ContextRole))
	assert.Equal(t, "GET:/v1/apps/*", events[0].ContextString(audit.ContextAction))
	assert.Equal(t, saved.ID, events[0].ContextString(audit.ContextResource))
	assert.Equal(t, "created", events[0].ContextString(audit.ContextResult))
	assert.Equal(t, "viewer", events[0].ContextString("ruleRole"))
	assert.Equal(t, []string{"permissions"}, events[0].Tags)

	assert.Equal(t, audit.EventPermissionUpdated, events[1].Type)
	assert.Equal(t, "deny", events[1].ContextString("access"))

	assert.Equal(t, audit.EventPermissionDeleted, events[2].Type)
	assert.Equal(t, audit.SeverityHigh, events[2].Severity)
}

func TestAdmin_FailedWritesAreNotAudited(t *testing.T) {
	t.Parallel()

	auditor := &recordingAuditor{}
	admin := NewAdmin(NewMemoryStore(), auditor, nil)
	ctx := context.Background()

	_, _, err := admin.Upsert(ctx, Actor{}, PermissionRule{Role: "viewer"})
	assert.ErrorIs(t, err, ErrInvalidRule)
	_, err = admin.Delete(ctx, Actor{}, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, auditor.Events())
}

func TestAdmin_ReadsAndNilAuditor(t *testing.T) {
	t.Parallel()

	admin := NewAdmin(NewMemoryStore(), nil, nil)
	ctx := context.Background()

	saved, _, err := admin.Upsert(ctx, Actor{}, PermissionRule{Role: "viewer", Method: "GET", PathPattern: "/a", Access: AccessAllow})
	require.NoError(t, err)

	rules, err := admin.List(ctx, "viewer")
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	got, err := admin.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, got)
}

func TestAdmin_WithPipeline(t *testing.T) {
	t.Parallel()

	sink := audit.NewMemorySink()
	pipeline, err := audit.NewPipeline(sink, audit.Config{BatchSize: 1000})
	require.NoError(t, err)

	admin := NewAdmin(NewMemoryStore(), pipeline, nil)
	_, _, err = admin.Upsert(context.Background(), Actor{SubjectID: "ops"},
		PermissionRule{Role: "viewer", Method: "GET", PathPattern: "/a", Access: AccessAllow})
	require.NoError(t, err)

	require.NoError(t, pipeline.Close(context.Background()))
	rows := sink.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, audit.EventPermissionCreated, rows[0].EventType)
	assert.Equal(t, "ops", rows[0].Subject)
}
