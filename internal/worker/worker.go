package worker

import (
	"net"
	"strconv"
)

// Worker is one member of the balanced pool. Identity is the port: ports
// are unique within a pool and every worker is reachable at localhost.
type Worker struct {
	Host string
	Port int
}

// New creates a Worker. An empty host defaults to localhost.
func New(host string, port int) Worker {
	if host == "" {
		host = "localhost"
	}
	return Worker{Host: host, Port: port}
}

// Addr returns the worker's dialable host:port address.
func (w Worker) Addr() string {
	return net.JoinHostPort(w.Host, strconv.Itoa(w.Port))
}

// Destination is the resolved forwarding target for a single exchange.
// It is computed fresh per exchange and never stored.
type Destination struct {
	Host string
	Port int
}

// Addr returns the destination's dialable host:port address.
func (d Destination) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}
