// Package routing owns the shared routing state consulted on every
// exchange: the known worker ports and the current least-busy fallback.
package routing
