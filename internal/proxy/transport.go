package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/pvelikov/session-balancer/internal/worker"
)

// Forwarder delivers a resolved exchange to its destination worker. Plain
// requests and protocol upgrades go through distinct calls: an upgrade
// carries the raw client connection and any bytes already read from it.
type Forwarder interface {
	ForwardRequest(w http.ResponseWriter, r *http.Request, dest worker.Destination) error
	ForwardUpgrade(conn net.Conn, r *http.Request, head []byte, dest worker.Destination) error
}

// Transport is the default Forwarder. Plain requests ride a cached reverse
// proxy per destination port; upgrades become a raw TCP splice between the
// client and the worker.
type Transport struct {
	mu          sync.Mutex
	proxies     map[int]*httputil.ReverseProxy
	dialTimeout time.Duration
	logger      *slog.Logger
}

func NewTransport(logger *slog.Logger) *Transport {
	return &Transport{
		proxies:     make(map[int]*httputil.ReverseProxy),
		dialTimeout: 10 * time.Second,
		logger:      logger,
	}
}

type captureKey struct{}

type errCapture struct {
	err error
}

// ForwardRequest proxies r to the destination worker. A transport failure
// is returned to the caller after the proxy has answered 502; the caller
// decides whether it is reportable.
func (t *Transport) ForwardRequest(w http.ResponseWriter, r *http.Request, dest worker.Destination) error {
	capture := &errCapture{}
	r = r.WithContext(context.WithValue(r.Context(), captureKey{}, capture))

	t.proxyFor(dest.Port).ServeHTTP(w, r)
	return capture.err
}

func (t *Transport) proxyFor(port int) *httputil.ReverseProxy {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rp, ok := t.proxies[port]; ok {
		return rp
	}

	target := &url.URL{Scheme: "http", Host: fmt.Sprintf("localhost:%d", port)}
	rp := httputil.NewSingleHostReverseProxy(target)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if capture, ok := r.Context().Value(captureKey{}).(*errCapture); ok {
			capture.err = fmt.Errorf("forward to %s: %w", target.Host, err)
		}
		w.WriteHeader(http.StatusBadGateway)
	}

	t.proxies[port] = rp
	t.logger.Debug("Created reverse proxy", slog.Int("port", port))
	return rp
}

// ForwardUpgrade dials the destination worker, replays the upgrade request
// plus any buffered client bytes, and splices the two connections until
// either side closes. Both connections are closed on return.
func (t *Transport) ForwardUpgrade(conn net.Conn, r *http.Request, head []byte, dest worker.Destination) error {
	backend, err := net.DialTimeout("tcp", dest.Addr(), t.dialTimeout)
	if err != nil {
		conn.Close()
		return fmt.Errorf("dial %s: %w", dest.Addr(), err)
	}
	defer backend.Close()
	defer conn.Close()

	if err := r.Write(backend); err != nil {
		return fmt.Errorf("replay upgrade request to %s: %w", dest.Addr(), err)
	}
	if len(head) > 0 {
		if _, err := backend.Write(head); err != nil {
			return fmt.Errorf("replay buffered bytes to %s: %w", dest.Addr(), err)
		}
	}

	errCh := make(chan error, 2)
	go splice(backend, conn, errCh)
	go splice(conn, backend, errCh)

	// First side to finish tears down the tunnel; the peer copy unblocks
	// on the deferred closes.
	if err := <-errCh; err != nil && err != io.EOF {
		return err
	}
	return nil
}

func splice(dst io.Writer, src io.Reader, errCh chan<- error) {
	_, err := io.Copy(dst, src)
	errCh <- err
}
