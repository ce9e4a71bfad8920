package audit

import (
	"slices"
	"time"
)

// Query limits.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// Filter selects events from a durable sink. Zero fields do not filter.
type Filter struct {
	Types       []EventType
	MinSeverity Severity
	Severities  []Severity
	Subject     string
	Role        string
	From        time.Time
	To          time.Time
	Offset      int
	Limit       int
}

// Normalize clamps paging values.
func (f Filter) Normalize() Filter {
	if f.Offset < 0 {
		f.Offset = 0
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultQueryLimit
	case f.Limit > MaxQueryLimit:
		f.Limit = MaxQueryLimit
	}
	return f
}

// Matches reports whether r passes every condition of f, ignoring paging.
func (f Filter) Matches(r Row) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, r.EventType) {
		return false
	}
	if f.MinSeverity != 0 && r.Severity < f.MinSeverity {
		return false
	}
	if len(f.Severities) > 0 && !slices.Contains(f.Severities, r.Severity) {
		return false
	}
	if f.Subject != "" && r.Subject != f.Subject {
		return false
	}
	if f.Role != "" && r.Role != f.Role {
		return false
	}
	if !f.From.IsZero() && r.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.CreatedAt.Before(f.To) {
		return false
	}
	return true
}
