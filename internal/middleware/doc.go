// Package middleware implements the ordered, short-circuiting handler
// chains gating plain and protocol-upgrade exchanges before dispatch.
// Collaborators register authentication, rate limiting, or request shaping
// here without the core knowing their concerns; a vetoed exchange is never
// forwarded.
package middleware
