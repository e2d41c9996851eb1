// Package session decodes sticky-routing hints smuggled inside session
// identifiers. Backends embed the owning worker's port in the session token
// (prefix_port_suffix_...), so no separate affinity cookie is needed.
package session
