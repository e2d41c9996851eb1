// Package faults implements the supervisory boundary around all
// asynchronous work. Every fault is classified in one place: transient
// peer resets and hang-ups are swallowed, everything else is emitted on a
// single error channel so a malformed worker response, a client disconnect
// mid-request, or a middleware panic never crashes the service.
package faults
