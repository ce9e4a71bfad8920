package audit

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrQueryNotSupported is returned by sinks that can only be written.
var ErrQueryNotSupported = errors.New("audit sink does not support queries")

// Sink is the durable destination of audit rows.
type Sink interface {
	// Insert writes rows atomically: either all rows are stored or none.
	Insert(ctx context.Context, rows []Row) error

	// Query returns matching rows, newest first, honoring Offset and Limit.
	Query(ctx context.Context, f Filter) ([]Row, error)

	// Count returns the number of matching rows, ignoring paging.
	Count(ctx context.Context, f Filter) (int, error)
}

// MemorySink keeps rows in memory.
type MemorySink struct {
	mu   sync.RWMutex
	rows []Row
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Insert appends rows.
func (s *MemorySink) Insert(ctx context.Context, rows []Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
	return nil
}

// Query returns matching rows, newest first.
func (s *MemorySink) Query(ctx context.Context, f Filter) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f = f.Normalize()
	matched := s.match(f)
	if f.Offset >= len(matched) {
		return []Row{}, nil
	}
	end := min(f.Offset+f.Limit, len(matched))
	return matched[f.Offset:end], nil
}

// Count returns the number of matching rows.
func (s *MemorySink) Count(ctx context.Context, f Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(s.match(f)), nil
}

// Len returns the number of stored rows.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Rows returns a copy of the stored rows in insertion order.
func (s *MemorySink) Rows() []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Row(nil), s.rows...)
}

func (s *MemorySink) match(f Filter) []Row {
	s.mu.RLock()
	matched := make([]Row, 0, len(s.rows))
	for _, r := range s.rows {
		if f.Matches(r) {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return matched
}
