// Package versioncache remembers, per connection, the fingerprint of the last
// scene that was successfully persisted.
//
// The cache only holds weak references to connections. Once nothing else
// references a connection it can be collected, and its entry is removed by a
// runtime cleanup, so long-running processes with many short-lived
// connections do not accumulate entries.
package versioncache

import (
	"runtime"
	"sync"
	"weak"

	"collabtext/scene"
)

// Cache maps connection identity to the last saved scene fingerprint.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[weak.Pointer[T]]scene.Fingerprint
}

// New returns an empty cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{entries: make(map[weak.Pointer[T]]scene.Fingerprint)}
}

// Get returns the fingerprint recorded for conn.
func (c *Cache[T]) Get(conn *T) (scene.Fingerprint, bool) {
	if conn == nil {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[weak.Make(conn)]
	return v, ok
}

// Set records the fingerprint of s against conn.
func (c *Cache[T]) Set(conn *T, s scene.Scene) {
	if conn == nil {
		return
	}
	v := s.Version()
	wp := weak.Make(conn)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[wp]; !ok {
		runtime.AddCleanup(conn, c.evict, wp)
	}
	c.entries[wp] = v
}

// IsDirty reports whether s differs from the last scene saved over conn. A
// connection with no entry is always dirty.
func (c *Cache[T]) IsDirty(conn *T, s scene.Scene) bool {
	v, ok := c.Get(conn)
	return !ok || v != s.Version()
}

// Len returns the number of entries whose connection is still alive.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for wp := range c.entries {
		if wp.Value() != nil {
			n++
		}
	}
	return n
}

func (c *Cache[T]) evict(wp weak.Pointer[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, wp)
}
