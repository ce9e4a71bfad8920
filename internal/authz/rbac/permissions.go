package rbac

import (
	"strings"

	"github.com/vyrodovalexey/avauthz/internal/authz/pattern"
)

// Subject is the caller being authorized.
type Subject struct {
	// ID identifies the caller.
	ID string

	// Role is the caller's role. An empty role is always denied.
	Role string

	// Allow holds METHOD:PATH descriptors or wildcard patterns the caller may use.
	Allow []string

	// Deny holds patterns that override any allow entry.
	Deny []string
}

// HasExplicitPermissions reports whether the subject carries its own allow
// or deny sets.
func (s *Subject) HasExplicitPermissions() bool {
	return len(s.Allow) > 0 || len(s.Deny) > 0
}

// Action builds the METHOD:PATH descriptor for a request.
func Action(method, path string) string {
	return method + ":" + path
}

// PermissionSet is a conflict-resolved pair of allow and deny descriptors.
type PermissionSet struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
}

// NewPermissionSet builds a PermissionSet. Empty and duplicate entries are
// dropped, and every allow entry matched by a deny pattern is removed so the
// resulting allow list never conflicts with the deny list.
func NewPermissionSet(allow, deny []string) PermissionSet {
	deny = dedupe(deny)

	denyMatchers := make([]*pattern.Matcher, 0, len(deny))
	for _, d := range deny {
		if m, err := pattern.Compile(d); err == nil {
			denyMatchers = append(denyMatchers, m)
		}
	}

	filtered := make([]string, 0, len(allow))
	for _, a := range dedupe(allow) {
		if matchesAny(denyMatchers, a) {
			continue
		}
		filtered = append(filtered, a)
	}

	return PermissionSet{Allow: filtered, Deny: deny}
}

// IsEmpty reports whether both lists are empty.
func (p PermissionSet) IsEmpty() bool {
	return len(p.Allow) == 0 && len(p.Deny) == 0
}

func matchesAny(matchers []*pattern.Matcher, candidate string) bool {
	for _, m := range matchers {
		if m.Test(candidate) {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
