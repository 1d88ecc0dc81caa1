// Package state implements the reducer-driven state container.
//
// ARCHITECTURE:
//
// Single Mutation Path:
// Container.Dispatch is the only way to change state. Each action kind maps
// to exactly one transition function (state, action, env) -> state that never
// modifies its input. Readers get immutable snapshots via Container.Snapshot.
//
// Serialized Dispatch:
// Dispatches are applied one at a time in call order. Change hooks (the sync
// service's write-through) run inside the same critical section, so an
// action's complete effects (new state, notification, outbound write) are
// visible to the next dispatched action.
//
// Follow-up Actions:
// A hook may return follow-up actions (e.g. "write failed" notifications,
// "synced" stamps). Follow-ups are applied immediately without re-running
// hooks, which bounds the work done per dispatch.
//
// INVALID ACTIONS:
// Malformed payloads are silently ignored by Dispatch: state is unchanged and
// no notification is recorded. Apply is the strict variant and returns
// ErrInvalidAction for the same inputs.
//
// IDENTITY:
// New records get IDs from an injected IDGenerator (UUIDv7 by default), never
// from the wall clock, so rapid successive creates cannot collide.
package state
