package worker

import "sync"

// Status is one worker's self-reported load snapshot.
type Status struct {
	ClientCount int `json:"clientCount"`
	HTTPRPM     int `json:"httpRPM"`
	IORPM       int `json:"ioRPM"`
}

// Business is the combined load score used for least-busy selection.
func (s Status) Business() int {
	return s.ClientCount + s.HTTPRPM + s.IORPM
}

// StatusCache holds the latest load report per worker port. A port with no
// entry has unknown load and is treated as maximally busy.
type StatusCache struct {
	mu    sync.RWMutex
	slots map[int]Status
}

func NewStatusCache() *StatusCache {
	return &StatusCache{slots: make(map[int]Status)}
}

// Put overwrites the slot for port with the latest report.
func (c *StatusCache) Put(port int, st Status) {
	c.mu.Lock()
	c.slots[port] = st
	c.mu.Unlock()
}

// Forget marks port's load as unknown.
func (c *StatusCache) Forget(port int) {
	c.mu.Lock()
	delete(c.slots, port)
	c.mu.Unlock()
}

// Get returns the latest report for port, if one exists.
func (c *StatusCache) Get(port int) (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.slots[port]
	return st, ok
}

// Reset drops every slot. Used when the pool is replaced.
func (c *StatusCache) Reset() {
	c.mu.Lock()
	c.slots = make(map[int]Status)
	c.mu.Unlock()
}

// Snapshot returns a copy of all known slots.
func (c *StatusCache) Snapshot() map[int]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int]Status, len(c.slots))
	for port, st := range c.slots {
		out[port] = st
	}
	return out
}
