// Package proxy implements the transport forwarder: byte-level delivery of
// plain HTTP requests and hijacked protocol-upgrade connections to a chosen
// worker. It performs no destination selection and no retries.
package proxy
