package middleware

import (
	"net"
	"net/http"
	"sync"
)

// RequestHandler inspects or mutates a plain exchange before it is
// dispatched. A non-nil error vetoes the exchange.
type RequestHandler func(w http.ResponseWriter, r *http.Request) error

// UpgradeHandler gates a protocol-upgrade exchange. conn is the hijacked
// client connection and head holds any bytes already read past the
// handshake request.
type UpgradeHandler func(conn net.Conn, r *http.Request, head []byte) error

// RequestChain is the ordered handler sequence for plain exchanges.
// Handlers are appended at configuration time and run strictly in
// registration order; the first error short-circuits the rest.
type RequestChain struct {
	mu       sync.RWMutex
	handlers []RequestHandler
}

func NewRequestChain() *RequestChain {
	return &RequestChain{}
}

// Use appends a handler to the chain.
func (c *RequestChain) Use(h RequestHandler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

// Len returns the number of registered handlers.
func (c *RequestChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers)
}

// Run executes the chain in order, stopping at the first handler error.
func (c *RequestChain) Run(w http.ResponseWriter, r *http.Request) error {
	c.mu.RLock()
	handlers := c.handlers
	c.mu.RUnlock()

	for _, h := range handlers {
		if err := h(w, r); err != nil {
			return err
		}
	}
	return nil
}

// UpgradeChain is the ordered handler sequence for protocol-upgrade
// exchanges, with the same run semantics as RequestChain.
type UpgradeChain struct {
	mu       sync.RWMutex
	handlers []UpgradeHandler
}

func NewUpgradeChain() *UpgradeChain {
	return &UpgradeChain{}
}

// Use appends a handler to the chain.
func (c *UpgradeChain) Use(h UpgradeHandler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

// Len returns the number of registered handlers.
func (c *UpgradeChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers)
}

// Run executes the chain in order, stopping at the first handler error.
func (c *UpgradeChain) Run(conn net.Conn, r *http.Request, head []byte) error {
	c.mu.RLock()
	handlers := c.handlers
	c.mu.RUnlock()

	for _, h := range handlers {
		if err := h(conn, r, head); err != nil {
			return err
		}
	}
	return nil
}
