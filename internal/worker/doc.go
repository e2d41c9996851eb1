// Package worker defines the worker pool data model: worker identity,
// per-exchange forwarding destinations, and the port-indexed cache of
// self-reported load used for least-busy selection.
package worker
