// Package kresolved provides the core of a recursive, caching,
// DNSSEC-validating DNS resolver: the resolution data model, name
// utilities, wire-message helpers and the shared error taxonomy used by
// the plan, delegation, cache, dnssec, accumulator and resolver
// sub-packages.
//
// The event loop, durable cache backend, configuration loader and log
// sink are external collaborators; this package only depends on the
// contracts it needs from them.
package kresolved
