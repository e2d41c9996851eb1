// Package httpserver wraps the standard HTTP server with address
// validation and graceful shutdown, tuned for long-lived hijacked
// upgrade connections.
package httpserver
