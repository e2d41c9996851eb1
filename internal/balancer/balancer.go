package balancer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pvelikov/session-balancer/internal/dispatch"
	"github.com/pvelikov/session-balancer/internal/faults"
	"github.com/pvelikov/session-balancer/internal/health"
	"github.com/pvelikov/session-balancer/internal/metrics"
	"github.com/pvelikov/session-balancer/internal/middleware"
	"github.com/pvelikov/session-balancer/internal/proxy"
	"github.com/pvelikov/session-balancer/internal/routing"
	"github.com/pvelikov/session-balancer/internal/worker"
)

// Controller is an optional external collaborator handed the running
// balancer at startup. Implementations may register middleware, trigger
// pool reconfiguration, or just observe; no further contract is imposed.
type Controller interface {
	Attach(b *Balancer) error
}

// Balancer is the session-sticky balancing engine: it owns the routing
// table, the status cache, the middleware chains, and the health monitor,
// and exposes the two exchange entry points.
type Balancer struct {
	logger     *slog.Logger
	boundary   *faults.Boundary
	collector  *metrics.Collector
	table      *routing.Table
	cache      *worker.StatusCache
	dispatcher *dispatch.Dispatcher
	requests   *middleware.RequestChain
	upgrades   *middleware.UpgradeChain
	healthCfg  health.Config

	mu          sync.Mutex
	baseCtx     context.Context
	stopMonitor context.CancelFunc
}

func New(
	logger *slog.Logger,
	boundary *faults.Boundary,
	collector *metrics.Collector,
	forwarder proxy.Forwarder,
	healthCfg health.Config,
	workers []worker.Worker,
) *Balancer {
	table := routing.NewTable(workers)

	return &Balancer{
		logger:     logger,
		boundary:   boundary,
		collector:  collector,
		table:      table,
		cache:      worker.NewStatusCache(),
		dispatcher: dispatch.New(table, forwarder, logger),
		requests:   middleware.NewRequestChain(),
		upgrades:   middleware.NewUpgradeChain(),
		healthCfg:  healthCfg,
	}
}

// Start launches the health monitor. ctx bounds the whole balancer
// lifetime; cancelling it stops polling.
func (b *Balancer) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.baseCtx = ctx
	b.startMonitorLocked()
}

// Reconfigure replaces the worker pool wholesale: the known-ports set is
// rebuilt, the status cache cleared, and the poll timer restarted. Late
// status writes from a prior sweep land in orphaned slots and are harmless.
func (b *Balancer) Reconfigure(workers []worker.Worker) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.table.Reconfigure(workers)
	b.cache.Reset()
	b.logger.Info("Worker pool reconfigured", slog.Int("workers", len(workers)))

	if b.baseCtx != nil {
		b.startMonitorLocked()
	}
}

func (b *Balancer) startMonitorLocked() {
	if b.stopMonitor != nil {
		b.stopMonitor()
	}

	ctx, cancel := context.WithCancel(b.baseCtx)
	b.stopMonitor = cancel

	mon := health.NewMonitor(b.healthCfg, b.table, b.cache, b.logger, b.collector)
	go b.boundary.Guard("", func() error {
		mon.Run(ctx)
		return nil
	})
}

// UseRequest appends a handler to the plain-request chain.
func (b *Balancer) UseRequest(h middleware.RequestHandler) {
	b.requests.Use(h)
}

// UseUpgrade appends a handler to the protocol-upgrade chain.
func (b *Balancer) UseUpgrade(h middleware.UpgradeHandler) {
	b.upgrades.Use(h)
}

// Table exposes the routing table for controllers and tests. It is
// read-only on the exchange path; callers must not write it outside
// Reconfigure.
func (b *Balancer) Table() *routing.Table {
	return b.table
}

// HandleRequest is the entry point for plain exchanges: middleware chain,
// then dispatch. Every fault raised here is classified by the boundary.
func (b *Balancer) HandleRequest(w http.ResponseWriter, r *http.Request) {
	exchange := uuid.NewString()

	defer func() {
		if rec := recover(); rec != nil {
			b.boundary.Report(exchange, fmt.Errorf("request exchange panic: %v", rec))
			b.collector.Emit(metrics.Event{Type: metrics.EventFault})
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}()

	b.logger.Info("Received request",
		slog.String("exchange", exchange),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("host", r.Host))

	if err := b.requests.Run(w, r); err != nil {
		b.boundary.Report(exchange, fmt.Errorf("request middleware: %w", err))
		b.collector.Emit(metrics.Event{Type: metrics.EventVetoed})
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	start := time.Now()
	dest, err := b.dispatcher.DispatchRequest(w, r)
	if err != nil {
		if b.boundary.Report(exchange, err) {
			b.collector.Emit(metrics.Event{Type: metrics.EventFault})
		}
		return
	}

	b.collector.Emit(metrics.Event{
		Type:     metrics.EventForwarded,
		Port:     dest.Port,
		Duration: time.Since(start),
	})
}

// HandleUpgrade is the entry point for protocol-upgrade exchanges. The
// client connection is hijacked, gated by the upgrade chain, and spliced to
// the destination worker; the call returns when the tunnel closes.
func (b *Balancer) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	exchange := uuid.NewString()

	defer func() {
		if rec := recover(); rec != nil {
			b.boundary.Report(exchange, fmt.Errorf("upgrade exchange panic: %v", rec))
			b.collector.Emit(metrics.Event{Type: metrics.EventFault})
		}
	}()

	b.logger.Info("Received upgrade",
		slog.String("exchange", exchange),
		slog.String("path", r.URL.Path),
		slog.String("host", r.Host))

	hj, ok := w.(http.Hijacker)
	if !ok {
		b.boundary.Report(exchange, fmt.Errorf("upgrade exchange: response writer does not support hijacking"))
		b.collector.Emit(metrics.Event{Type: metrics.EventFault})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	conn, rw, err := hj.Hijack()
	if err != nil {
		b.boundary.Report(exchange, fmt.Errorf("hijack: %w", err))
		b.collector.Emit(metrics.Event{Type: metrics.EventFault})
		return
	}

	// Bytes the client sent past the handshake before we took the socket.
	var head []byte
	if n := rw.Reader.Buffered(); n > 0 {
		head, _ = rw.Reader.Peek(n)
	}

	if err := b.upgrades.Run(conn, r, head); err != nil {
		b.boundary.Report(exchange, fmt.Errorf("upgrade middleware: %w", err))
		b.collector.Emit(metrics.Event{Type: metrics.EventVetoed})
		conn.Close()
		return
	}

	dest, err := b.dispatcher.DispatchUpgrade(conn, r, head)
	if err != nil {
		if b.boundary.Report(exchange, err) {
			b.collector.Emit(metrics.Event{Type: metrics.EventFault})
		}
		return
	}

	b.collector.Emit(metrics.Event{
		Type: metrics.EventUpgraded,
		Port: dest.Port,
	})
}
