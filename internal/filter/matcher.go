// Package filter decides which delivered paths a consumer ignores.
package filter

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// Matcher holds compiled ignore patterns. A pattern matches when it matches
// the full slash-separated path, its base name, or any single path element.
type Matcher struct {
	mu       sync.RWMutex
	patterns []string
	ignore   []glob.Glob
}

// NewMatcher compiles patterns. Blank lines and lines starting with # are
// skipped.
func NewMatcher(patterns []string) (*Matcher, error) {
	matcher := &Matcher{}
	if err := matcher.SetIgnorePatterns(patterns); err != nil {
		return nil, err
	}
	return matcher, nil
}

// Validate reports the first pattern that does not compile.
func Validate(patterns []string) error {
	_, err := compile(patterns)
	return err
}

func (m *Matcher) SetIgnorePatterns(patterns []string) error {
	compiled, err := compile(patterns)
	if err != nil {
		return err
	}
	kept := make([]string, 0, len(compiled))
	for _, pattern := range patterns {
		if normalized, ok := normalize(pattern); ok {
			kept = append(kept, normalized)
		}
	}

	m.mu.Lock()
	m.ignore = compiled
	m.patterns = kept
	m.mu.Unlock()
	return nil
}

func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.patterns...)
}

// IsIgnored reports whether path matches any ignore pattern. A nil Matcher
// ignores nothing.
func (m *Matcher) IsIgnored(path string) bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.ignore) == 0 {
		return false
	}

	normalizedPath := filepath.ToSlash(path)
	base := filepath.Base(path)
	elements := strings.Split(strings.Trim(normalizedPath, "/"), "/")
	for _, pattern := range m.ignore {
		if pattern.Match(normalizedPath) || pattern.Match(base) {
			return true
		}
		for _, element := range elements {
			if element != "" && pattern.Match(element) {
				return true
			}
		}
	}
	return false
}

func compile(patterns []string) ([]glob.Glob, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		normalized, ok := normalize(pattern)
		if !ok {
			continue
		}
		g, err := glob.Compile(normalized, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, g)
	}
	return compiled, nil
}

func normalize(pattern string) (string, bool) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return "", false
	}
	return filepath.ToSlash(pattern), true
}
