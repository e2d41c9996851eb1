package dispatch

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/pvelikov/session-balancer/internal/proxy"
	"github.com/pvelikov/session-balancer/internal/routing"
	"github.com/pvelikov/session-balancer/internal/session"
	"github.com/pvelikov/session-balancer/internal/worker"
)

// Dispatcher resolves the forwarding destination for an exchange and hands
// it to the transport forwarder. It holds no state of its own and never
// retries: a forwarding failure is surfaced to the caller.
type Dispatcher struct {
	table     *routing.Table
	forwarder proxy.Forwarder
	logger    *slog.Logger
}

func New(table *routing.Table, forwarder proxy.Forwarder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		table:     table,
		forwarder: forwarder,
		logger:    logger,
	}
}

// Destination decodes the request's session hint and resolves it against
// the routing table.
func (d *Dispatcher) Destination(r *http.Request) worker.Destination {
	hint := session.Decode(r, d.table.LeastBusy())
	return d.table.Resolve(hint)
}

// DispatchRequest forwards a plain exchange and returns the destination it
// was sent to.
func (d *Dispatcher) DispatchRequest(w http.ResponseWriter, r *http.Request) (worker.Destination, error) {
	dest := d.Destination(r)

	d.logger.Debug("Forwarding request",
		slog.String("path", r.URL.Path),
		slog.Int("port", dest.Port))

	return dest, d.forwarder.ForwardRequest(w, r, dest)
}

// DispatchUpgrade forwards a protocol-upgrade exchange. The call blocks for
// the lifetime of the spliced connection.
func (d *Dispatcher) DispatchUpgrade(conn net.Conn, r *http.Request, head []byte) (worker.Destination, error) {
	dest := d.Destination(r)

	d.logger.Debug("Forwarding upgrade",
		slog.String("path", r.URL.Path),
		slog.Int("port", dest.Port))

	return dest, d.forwarder.ForwardUpgrade(conn, r, head, dest)
}
