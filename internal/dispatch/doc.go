// Package dispatch composes the session decoder, the routing table, and
// the transport forwarder into the final per-exchange routing decision.
package dispatch
