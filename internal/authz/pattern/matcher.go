// Package pattern compiles wildcard action descriptors such as
// "GET:/v1/App/*" into anchored matchers.
//
// The asterisk is the only metacharacter. It matches any run of characters,
// slashes included. Every other character is matched literally and the
// pattern must cover the whole candidate.
package pattern

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// Wildcard is the only metacharacter understood by Compile.
const Wildcard = "*"

// DefaultCacheSize bounds the number of compiled patterns a Cache retains.
const DefaultCacheSize = 4096

// ErrInvalidPattern is returned when a pattern is empty.
var ErrInvalidPattern = errors.New("invalid pattern")

// Matcher tests candidates against one compiled pattern.
type Matcher struct {
	pattern string
	re      *regexp.Regexp

	// literals is set instead of re for patterns that are not valid UTF-8,
	// which regexp cannot express. They are matched byte by byte.
	literals []string
}

// Compile turns a wildcard pattern into a Matcher. Only the empty pattern
// is rejected.
func Compile(pattern string) (*Matcher, error) {
	if pattern == "" {
		return nil, ErrInvalidPattern
	}

	parts := strings.Split(pattern, Wildcard)
	if !utf8.ValidString(pattern) {
		return &Matcher{pattern: pattern, literals: parts}, nil
	}

	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	re, err := regexp.Compile(`(?s)\A` + strings.Join(parts, ".*") + `\z`)
	if err != nil {
		return nil, errors.Join(ErrInvalidPattern, err)
	}

	return &Matcher{pattern: pattern, re: re}, nil
}

// MustCompile is like Compile but panics on an empty pattern.
func MustCompile(pattern string) *Matcher {
	m, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// Test reports whether candidate matches the whole pattern.
func (m *Matcher) Test(candidate string) bool {
	if m.re == nil {
		return matchLiterals(m.literals, candidate)
	}
	return m.re.MatchString(candidate)
}

// matchLiterals reports whether s is the literals joined by arbitrary runs
// of bytes.
func matchLiterals(literals []string, s string) bool {
	last := len(literals) - 1
	if last == 0 {
		return s == literals[0]
	}
	if !strings.HasPrefix(s, literals[0]) {
		return false
	}
	s = s[len(literals[0]):]
	for _, lit := range literals[1:last] {
		i := strings.Index(s, lit)
		if i < 0 {
			return false
		}
		s = s[i+len(lit):]
	}
	return strings.HasSuffix(s, literals[last])
}

// String returns the source pattern.
func (m *Matcher) String() string {
	return m.pattern
}

// Cache memoizes compiled matchers by pattern string. It is safe for
// concurrent use.
type Cache struct {
	mu       sync.RWMutex
	matchers map[string]*Matcher
	max      int
}

// NewCache creates a cache holding at most size matchers. A size of zero or
// less selects DefaultCacheSize.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		matchers: make(map[string]*Matcher),
		max:      size,
	}
}

// Get returns the compiled matcher for pattern, compiling it on first use.
func (c *Cache) Get(pattern string) (*Matcher, error) {
	c.mu.RLock()
	m, ok := c.matchers[pattern]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := Compile(pattern)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if existing, ok := c.matchers[pattern]; ok {
		return existing, nil
	}
	if len(c.matchers) < c.max {
		c.matchers[pattern] = m
	}
	return m, nil
}

// Match reports whether candidate equals pattern or matches it as a
// wildcard pattern. Invalid patterns never match.
func (c *Cache) Match(pattern, candidate string) bool {
	if pattern == candidate && pattern != "" {
		return true
	}
	if !strings.Contains(pattern, Wildcard) {
		return false
	}
	m, err := c.Get(pattern)
	if err != nil {
		return false
	}
	return m.Test(candidate)
}

// Len returns the number of cached matchers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.matchers)
}
