package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPermissionSet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		allow     []string
		deny      []string
		wantAllow []string
		wantDeny  []string
	}{
		{
			name:      "no conflicts",
			allow:     []string{"GET:/v1/App", "POST:/v1/App"},
			deny:      []string{"DELETE:/v1/*"},
			wantAllow: []string{"GET:/v1/App", "POST:/v1/App"},
			wantDeny:  []string{"DELETE:/v1/*"},
		},
		{
			name:      "allow entry covered by deny pattern is removed",
			allow:     []string{"GET:/v1/App", "DELETE:/v1/Admin/users"},
			deny:      []string{"DELETE:/v1/Admin/*"},
			wantAllow: []string{"GET:/v1/App"},
			wantDeny:  []string{"DELETE:/v1/Admin/*"},
		},
		{
			name:      "identical pattern is removed",
			allow:     []string{"GET:/v1/Admin/*"},
			deny:      []string{"GET:/v1/Admin/*"},
			wantAllow: []string{},
			wantDeny:  []string{"GET:/v1/Admin/*"},
		},
		{
			name:      "star allow survives targeted deny",
			allow:     []string{"*"},
			deny:      []string{"DELETE:/v1/Admin/*"},
			wantAllow: []string{"*"},
			wantDeny:  []string{"DELETE:/v1/Admin/*"},
		},
		{
			name:      "empty and duplicate entries dropped",
			allow:     []string{"", "GET:/a", " GET:/a ", "GET:/a"},
			deny:      []string{"", "x", "x"},
			wantAllow: []string{"GET:/a"},
			wantDeny:  []string{"x"},
		},
		{
			name:      "nil inputs",
			wantAllow: []string{},
			wantDeny:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			set := NewPermissionSet(tt.allow, tt.deny)
			assert.Equal(t, tt.wantAllow, set.Allow)
			assert.Equal(t, tt.wantDeny, set.Deny)
		})
	}
}

func TestPermissionSet_IsEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, PermissionSet{}.IsEmpty())
	assert.False(t, PermissionSet{Deny: []string{"*"}}.IsEmpty())
}

func TestSubject_HasExplicitPermissions(t *testing.T) {
	t.Parallel()

	assert.False(t, (&Subject{Role: RoleViewer}).HasExplicitPermissions())
	assert.True(t, (&Subject{Allow: []string{"GET:/"}}).HasExplicitPermissions())
	assert.True(t, (&Subject{Deny: []string{"GET:/"}}).HasExplicitPermissions())
	assert.Equal(t, "GET:/v1/App", Action("GET", "/v1/App"))
}
