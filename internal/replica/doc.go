// Package replica keeps a state.Container consistent with the shared blob
// store, making independently running instances converge.
//
// ARCHITECTURE:
//
// Write-through:
// The Service registers a change hook on the container. Every local change
// that touches the replicated payload is serialized whole and written to the
// "admin-state" key, then announced on the bus (one event per changed
// sub-resource plus full-state-changed). Cart changes go to the "cart" key.
//
// Ingest:
// Three signal sources feed one FIFO queue drained by Run: the store's
// passive watch, a fixed poll tick (5s by default) and explicit
// Notify/Resume calls. Each signal reads the shared record; a version newer
// than the last one this instance saw, whose canonical fingerprint differs
// from the local payload, is adopted with state.ReplaceState.
//
// CONFLICT POLICY:
// Last write wins at whole-state granularity. Concurrent edits on two
// instances are not merged: the later durable write replaces the earlier one
// everywhere.
//
// FAILURES:
// A failed write or read becomes a state.SyncFailed action (error
// notification, offline flag). Nothing is retried; in-memory state remains
// authoritative until the next successful write. Corrupt or foreign payloads
// are discarded the same way.
package replica
