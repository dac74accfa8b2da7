package singleflight

import (
	"sync"
	"time"
)

// Group collapses concurrent calls with the same key into one execution.
// Used to keep identity refreshes from stampeding a credentials provider.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

// call is an active or completed execution.
type call struct {
	wg  sync.WaitGroup
	val interface{}
	err error
}

// New creates an empty Group.
func New() *Group {
	return &Group{
		m: make(map[string]*call),
	}
}

// Do executes fn, making sure only one execution is in flight for key at a
// time. Duplicate callers block until the owner finishes and receive the
// owner's results.
func (g *Group) Do(key string, fn func() (interface{}, error)) (interface{}, error) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err
	}

	c := &call{}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()
	c.wg.Done()

	// Keep the completed call around briefly so a burst of duplicates
	// still coalesces, then drop it to avoid growing the map.
	go func() {
		time.Sleep(100 * time.Millisecond)
		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		g.mu.Unlock()
	}()

	return c.val, c.err
}

// ForgetKey drops the key, letting the next caller execute immediately even
// if an earlier call is still in flight.
func (g *Group) ForgetKey(key string) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}
