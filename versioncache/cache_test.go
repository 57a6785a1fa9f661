package versioncache

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/scene"
)

type testConn struct {
	name string
	buf  [64]byte
}

func TestGetSet(t *testing.T) {
	c := New[testConn]()
	conn := &testConn{name: "a"}
	s := scene.Scene{{ID: "x", Version: 2}, {ID: "y", Version: 5}}

	_, ok := c.Get(conn)
	assert.False(t, ok)
	assert.True(t, c.IsDirty(conn, s))

	c.Set(conn, s)
	v, ok := c.Get(conn)
	require.True(t, ok)
	assert.Equal(t, scene.Fingerprint(7), v)
	assert.False(t, c.IsDirty(conn, s))

	edited := s.Clone()
	edited[0].Version++
	assert.True(t, c.IsDirty(conn, edited))

	c.Set(conn, edited)
	assert.False(t, c.IsDirty(conn, edited))
	assert.Equal(t, 1, c.Len())

	runtime.KeepAlive(conn)
}

func TestConnectionsAreIndependent(t *testing.T) {
	c := New[testConn]()
	a, b := &testConn{name: "a"}, &testConn{name: "b"}
	s := scene.Scene{{ID: "x", Version: 1}}

	c.Set(a, s)
	assert.False(t, c.IsDirty(a, s))
	assert.True(t, c.IsDirty(b, s))
	assert.Equal(t, 1, c.Len())

	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
}

func TestNilConnection(t *testing.T) {
	c := New[testConn]()
	c.Set(nil, scene.Scene{{ID: "x", Version: 1}})
	assert.Equal(t, 0, c.Len())
	assert.True(t, c.IsDirty(nil, nil))
}

func TestEntriesDoNotOutliveConnections(t *testing.T) {
	c := New[testConn]()
	live := &testConn{name: "live"}
	c.Set(live, scene.Scene{{ID: "x", Version: 1}})

	for i := 0; i < 100; i++ {
		func() {
			conn := &testConn{name: "short-lived"}
			c.Set(conn, scene.Scene{{ID: "x", Version: int64(i)}})
		}()
	}

	require.Eventually(t, func() bool {
		runtime.GC()
		c.mu.Lock()
		n := len(c.entries)
		c.mu.Unlock()
		return n == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get(live)
	assert.True(t, ok)
	runtime.KeepAlive(live)
}
