// Package cache memoizes expensive loads keyed by the identity of their
// source files, collapsing concurrent duplicate loads into one.
package cache

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Identity identifies the version of a file: the entry is stale once any
// field changes.
type Identity struct {
	Path    string
	Size    int64
	ModTime time.Time
}

func (id Identity) String() string {
	return fmt.Sprintf("%s@%d:%d", id.Path, id.Size, id.ModTime.UnixNano())
}

// Stat returns the current identity of path.
func Stat(path string) (Identity, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Path: path, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// Key joins identities and qualifiers into a cache key.
func Key(parts ...fmt.Stringer) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = p.String()
	}
	return strings.Join(s, "|")
}

// Memo is a concurrency-safe memo table. Failed loads are not stored.
type Memo struct {
	mu      sync.RWMutex
	entries map[string]any
	group   singleflight.Group
}

// New returns an empty Memo.
func New() *Memo {
	return &Memo{entries: map[string]any{}}
}

// Get returns the memoized value for key, calling load once on a miss.
func (m *Memo) Get(key string, load func() (any, error)) (any, error) {
	m.mu.RLock()
	v, ok := m.entries[key]
	m.mu.RUnlock()
	if ok {
		return v, nil
	}
	v, err, shared := m.group.Do(key, func() (any, error) {
		m.mu.RLock()
		v, ok := m.entries[key]
		m.mu.RUnlock()
		if ok {
			return v, nil
		}
		start := time.Now()
		v, err := load()
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.entries[key] = v
		m.mu.Unlock()
		zap.L().Debug("cache fill", zap.String("key", key), zap.Duration("took", time.Since(start)))
		return v, nil
	})
	if shared {
		zap.L().Debug("cache load shared", zap.String("key", key))
	}
	return v, err
}

// Invalidate drops every entry whose key contains substr; an empty substr
// clears the table. It returns the number of entries removed.
func (m *Memo) Invalidate(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.entries {
		if substr == "" || strings.Contains(k, substr) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries.
func (m *Memo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Typed wraps Memo.Get with a type assertion.
func Typed[T any](m *Memo, key string, load func() (T, error)) (T, error) {
	v, err := m.Get(key, func() (any, error) { return load() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
