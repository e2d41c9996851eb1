package routing

import (
	"math/rand"
	"sync"

	"github.com/pvelikov/session-balancer/internal/session"
	"github.com/pvelikov/session-balancer/internal/worker"
)

// Table tracks the set of known worker ports and the current least-busy
// port. It is written only by the health monitor and by pool
// reconfiguration; the exchange path reads it.
type Table struct {
	mu        sync.RWMutex
	ports     []int
	known     map[int]struct{}
	leastBusy int
}

// NewTable builds a table for the given pool. The least-busy port starts as
// a uniformly random pool member until the first poll cycle replaces it.
func NewTable(workers []worker.Worker) *Table {
	t := &Table{}
	t.rebuild(workers)
	return t
}

// Reconfigure replaces the known-ports set wholesale and re-seeds the
// least-busy port from the new pool.
func (t *Table) Reconfigure(workers []worker.Worker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rebuild(workers)
}

func (t *Table) rebuild(workers []worker.Worker) {
	t.ports = make([]int, 0, len(workers))
	t.known = make(map[int]struct{}, len(workers))
	for _, w := range workers {
		t.ports = append(t.ports, w.Port)
		t.known[w.Port] = struct{}{}
	}
	if len(t.ports) > 0 {
		t.leastBusy = t.ports[rand.Intn(len(t.ports))]
	}
}

// Ports returns the known worker ports in pool order.
func (t *Table) Ports() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]int, len(t.ports))
	copy(out, t.ports)
	return out
}

// Known reports whether port belongs to the current pool.
func (t *Table) Known(port int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.known[port]
	return ok
}

// LeastBusy returns the current least-busy worker port.
func (t *Table) LeastBusy() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.leastBusy
}

// SetLeastBusy records the latest least-busy selection.
func (t *Table) SetLeastBusy(port int) {
	t.mu.Lock()
	t.leastBusy = port
	t.mu.Unlock()
}

// RandomPort returns a uniformly random known port.
func (t *Table) RandomPort() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.ports) == 0 {
		return t.leastBusy
	}
	return t.ports[rand.Intn(len(t.ports))]
}

// Resolve turns a decoded hint into a forwarding destination, applying the
// two-tier fallback policy: no hint routes to the least-busy worker, while
// a hint naming a port outside the pool routes to a uniformly random known
// worker. The two tiers are distinct on purpose: a stale hint spreads load
// randomly instead of piling onto the least-busy worker.
func (t *Table) Resolve(h *session.Hint) worker.Destination {
	if h == nil {
		return worker.Destination{Host: "localhost", Port: t.LeastBusy()}
	}
	if t.Known(h.Port) {
		return worker.Destination{Host: "localhost", Port: h.Port}
	}
	return worker.Destination{Host: "localhost", Port: t.RandomPort()}
}
