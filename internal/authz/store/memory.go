package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps rules in process memory.
type MemoryStore struct {
	opts options

	mu    sync.RWMutex
	byID  map[string]PermissionRule
	byKey map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:  newOptions(opts),
		byID:  make(map[string]PermissionRule),
		byKey: make(map[string]string),
	}
}

// FindByRole implements Store.
func (s *MemoryStore) FindByRole(_ context.Context, role string) ([]PermissionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PermissionRule, 0)
	for _, r := range s.byID {
		if r.Role == role {
			out = append(out, r)
		}
	}
	sortRules(out)
	return out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (PermissionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byID[id]
	if !ok {
		return PermissionRule{}, &StoreError{Op: "get", ID: id, Err: ErrNotFound}
	}
	return r, nil
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(_ context.Context, rule PermissionRule) (PermissionRule, bool, error) {
	rule = rule.Normalized()
	if err := rule.Validate(); err != nil {
		return PermissionRule{}, false, &StoreError{Op: "upsert", Role: rule.Role, Err: err}
	}
	now := s.opts.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[rule.uniqueKey()]; ok {
		existing := s.byID[id]
		existing.Access = rule.Access
		existing.UpdatedAt = now
		s.byID[id] = existing
		return existing, false, nil
	}

	if rule.ID == "" {
		rule.ID = NewRuleID(now)
	} else if _, taken := s.byID[rule.ID]; taken {
		return PermissionRule{}, false, &StoreError{Op: "upsert", ID: rule.ID, Err: ErrConflict}
	}
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.byID[rule.ID] = rule
	s.byKey[rule.uniqueKey()] = rule.ID
	return rule, true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) (PermissionRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return PermissionRule{}, &StoreError{Op: "delete", ID: id, Err: ErrNotFound}
	}
	delete(s.byID, id)
	delete(s.byKey, r.uniqueKey())
	return r, nil
}

func sortRules(rules []PermissionRule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Method != rules[j].Method {
			return rules[i].Method < rules[j].Method
		}
		return rules[i].PathPattern < rules[j].PathPattern
	})
}
