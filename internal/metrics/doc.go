// Package metrics provides real-time metrics collection for the balancer.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Forwarded and upgraded exchange counts per worker port
//   - Response times with percentile calculations (P50, P95)
//   - Middleware veto and fault counts
//   - The latest health sweep (least-busy port and per-worker load scores)
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the exchange path. Events are sent via a buffered channel with
// non-blocking semantics to prevent performance degradation under load.
package metrics
