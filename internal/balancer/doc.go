// Package balancer wires the routing-decision engine together: session
// decoding, least-busy health polling, middleware gating, dispatch, and
// fault isolation, behind two exchange entry points (plain and
// protocol-upgrade) and a runtime pool-reconfiguration operation.
package balancer
