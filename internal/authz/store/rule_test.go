package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionRule_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rule    PermissionRule
		wantErr string
	}{
		{
			name: "valid allow",
			rule: PermissionRule{Role: "viewer", Method: "get", PathPattern: "/v1/apps/*", Access: "Allow"},
		},
		{
			name: "any method",
			rule: PermissionRule{Role: "developer", Method: "*", PathPattern: "*", Access: AccessDeny},
		},
		{
			name:    "missing role",
			rule:    PermissionRule{Method: "GET", PathPattern: "/x", Access: AccessAllow},
			wantErr: "role is required",
		},
		{
			name:    "bad method",
			rule:    PermissionRule{Role: "r", Method: "GET1", PathPattern: "/x", Access: AccessAllow},
			wantErr: `invalid method "GET1"`,
		},
		{
			name:    "relative path",
			rule:    PermissionRule{Role: "r", Method: "GET", PathPattern: "v1/x", Access: AccessAllow},
			wantErr: "must start with / or *",
		},
		{
			name:    "bad access",
			rule:    PermissionRule{Role: "r", Method: "GET", PathPattern: "/x", Access: "maybe"},
			wantErr: `invalid access "maybe"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.rule.Normalized().Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRule)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPermissionRule_Normalized(t *testing.T) {
	t.Parallel()

	r := PermissionRule{Role: " viewer ", Method: " get", PathPattern: "/a ", Access: " DENY "}.Normalized()
	assert.Equal(t, "viewer", r.Role)
	assert.Equal(t, "GET", r.Method)
	assert.Equal(t, "/a", r.PathPattern)
	assert.Equal(t, AccessDeny, r.Access)
	assert.Equal(t, "GET:/a", r.Descriptor())
}

func TestPermissionSet(t *testing.T) {
	t.Parallel()

	set := PermissionSet([]PermissionRule{
		{Method: "GET", PathPattern: "/v1/apps/*", Access: AccessAllow},
		{Method: "GET", PathPattern: "/v1/apps/secret", Access: AccessAllow},
		{Method: "GET", PathPattern: "/v1/apps/secret", Access: AccessDeny},
		{Method: "*", PathPattern: "/v1/admin/*", Access: AccessDeny},
	})

	assert.Equal(t, []string{"GET:/v1/apps/*"}, set.Allow)
	assert.Equal(t, []string{"GET:/v1/apps/secret", "*:/v1/admin/*"}, set.Deny)
	assert.True(t, PermissionSet(nil).IsEmpty())
}

func TestNewRuleID(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a, b := NewRuleID(ts), NewRuleID(ts)
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	err := &StoreError{Op: "get", ID: "r1", Err: ErrNotFound}
	assert.Equal(t, `store: get id="r1": permission rule not found`, err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, &StoreError{})
	assert.NotErrorIs(t, err, ErrConflict)

	var se *StoreError
	require.ErrorAs(t, opError("find", errors.New("boom")), &se)
	assert.Equal(t, "find", se.Op)
	assert.Same(t, err, opError("other", err))
	assert.NoError(t, opError("x", nil))
}
