// Package health implements periodic load polling of the worker pool.
// Each sweep posts to every worker's status endpoint, caches the reported
// load, and recomputes the least-busy worker for the routing table.
package health
