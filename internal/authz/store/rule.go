package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vyrodovalexey/avauthz/internal/authz/pattern"
	"github.com/vyrodovalexey/avauthz/internal/authz/rbac"
)

// Access is the effect of a rule.
type Access string

// Rule effects.
const (
	AccessAllow Access = "allow"
	AccessDeny  Access = "deny"
)

// Valid reports whether a is allow or deny.
func (a Access) Valid() bool {
	return a == AccessAllow || a == AccessDeny
}

// AnyMethod matches every HTTP method.
const AnyMethod = "*"

// PermissionRule grants or denies one action descriptor to a role.
// (Role, Method, PathPattern) is unique within a store.
type PermissionRule struct {
	ID          string    `yaml:"id,omitempty" json:"id"`
	Role        string    `yaml:"role" json:"role"`
	Method      string    `yaml:"method" json:"method"`
	PathPattern string    `yaml:"pathPattern" json:"pathPattern"`
	Access      Access    `yaml:"access" json:"access"`
	CreatedAt   time.Time `yaml:"-" json:"createdAt"`
	UpdatedAt   time.Time `yaml:"-" json:"updatedAt"`
}

// Descriptor returns the METHOD:PATTERN form of the rule.
func (r PermissionRule) Descriptor() string {
	return rbac.Action(r.Method, r.PathPattern)
}

// Normalized returns a copy with surrounding space trimmed, the method
// upper-cased and the access lower-cased.
func (r PermissionRule) Normalized() PermissionRule {
	r.ID = strings.TrimSpace(r.ID)
	r.Role = strings.TrimSpace(r.Role)
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	r.PathPattern = strings.TrimSpace(r.PathPattern)
	r.Access = Access(strings.ToLower(strings.TrimSpace(string(r.Access))))
	return r
}

// Validate checks a normalized rule.
func (r PermissionRule) Validate() error {
	var errs []error
	if r.Role == "" {
		errs = append(errs, errors.New("role is required"))
	}
	if !validMethod(r.Method) {
		errs = append(errs, fmt.Errorf("invalid method %q", r.Method))
	}
	if r.PathPattern == "" {
		errs = append(errs, errors.New("pathPattern is required"))
	} else if !strings.HasPrefix(r.PathPattern, "/") && !strings.HasPrefix(r.PathPattern, "*") {
		errs = append(errs, fmt.Errorf("pathPattern %q must start with / or *", r.PathPattern))
	} else if _, err := pattern.Compile(r.Descriptor()); err != nil {
		errs = append(errs, err)
	}
	if !r.Access.Valid() {
		errs = append(errs, fmt.Errorf("invalid access %q (must be allow or deny)", r.Access))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRule, errors.Join(errs...))
	}
	return nil
}

func validMethod(m string) bool {
	if m == AnyMethod {
		return true
	}
	if m == "" {
		return false
	}
	for _, c := range m {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// uniqueKey identifies a rule by its natural key.
func (r PermissionRule) uniqueKey() string {
	return r.Role + "\x00" + r.Method + "\x00" + r.PathPattern
}

// NewRuleID returns a ULID for a rule created at t.
func NewRuleID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// PermissionSet splits rules into allow and deny descriptors and resolves
// conflicts with rbac.NewPermissionSet.
func PermissionSet(rules []PermissionRule) rbac.PermissionSet {
	var allow, deny []string
	for _, r := range rules {
		switch r.Access {
		case AccessAllow:
			allow = append(allow, r.Descriptor())
		case AccessDeny:
			deny = append(deny, r.Descriptor())
		}
	}
	return rbac.NewPermissionSet(allow, deny)
}
