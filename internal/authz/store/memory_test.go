package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestMemoryStore_UpsertCreatesThenUpdates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore(WithClock(newStepClock().Now))

	created, isNew, err := s.Upsert(ctx, PermissionRule{Role: "viewer", Method: "get", PathPattern: "/v1/apps/*", Access: AccessAllow})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "GET", created.Method)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	updated, isNew, err := s.Upsert(ctx, PermissionRule{Role: "viewer", Method: "GET", PathPattern: "/v1/apps/*", Access: AccessDeny})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, AccessDeny, updated.Access)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	rules, err := s.FindByRole(ctx, "viewer")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, AccessDeny, rules[0].Access)
}

func TestMemoryStore_FindByRoleSorted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	for _, r := range []PermissionRule{
		{Role: "dev", Method: "POST", PathPattern: "/b", Access: AccessAllow},
		{Role: "dev", Method: "GET", PathPattern: "/z", Access: AccessAllow},
		{Role: "dev", Method: "GET", PathPattern: "/a", Access: AccessAllow},
		{Role: "other", Method: "GET", PathPattern: "/a", Access: AccessAllow},
	} {
		_, _, err := s.Upsert(ctx, r)
		require.NoError(t, err)
	}

	rules, err := s.FindByRole(ctx, "dev")
	require.NoError(t, err)
	descriptors := make([]string, len(rules))
	for i, r := range rules {
		descriptors[i] = r.Descriptor()
	}
	assert.Equal(t, []string{"GET:/a", "GET:/z", "POST:/b"}, descriptors)

	none, err := s.FindByRole(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMemoryStore_GetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	saved, _, err := s.Upsert(ctx, PermissionRule{ID: "r1", Role: "viewer", Method: "GET", PathPattern: "/a", Access: AccessAllow})
	require.NoError(t, err)
	assert.Equal(t, "r1", saved.ID)

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	_, _, err = s.Upsert(ctx, PermissionRule{ID: "r1", Role: "viewer", Method: "GET", PathPattern: "/b", Access: AccessAllow})
	assert.ErrorIs(t, err, ErrConflict)

	deleted, err := s.Delete(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, saved, deleted)

	_, err = s.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Delete(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)

	// The natural key is free again.
	_, isNew, err := s.Upsert(ctx, PermissionRule{Role: "viewer", Method: "GET", PathPattern: "/a", Access: AccessAllow})
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestMemoryStore_RejectsInvalid(t *testing.T) {
	t.Parallel()

	_, _, err := NewMemoryStore().Upsert(context.Background(), PermissionRule{Role: "viewer"})
	assert.ErrorIs(t, err, ErrInvalidRule)
	assert.ErrorIs(t, err, &StoreError{})
}

func TestMemoryStore_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, _ = s.Upsert(ctx, PermissionRule{Role: "dev", Method: "GET", PathPattern: fmt.Sprintf("/p/%d", i%5), Access: AccessAllow})
			_, _ = s.FindByRole(ctx, "dev")
		}(i)
	}
	wg.Wait()

	rules, err := s.FindByRole(ctx, "dev")
	require.NoError(t, err)
	assert.Len(t, rules, 5)
}
