// Package store provides the durable blob store shared by all instances.
//
// The store is a small versioned key/value table:
//   - blobs: latest value per key, with a per-key version counter
//   - blob_history: one row per write (key, version, source, time)
//
// # Critical Patterns
//
// Versioned Writes:
//   - Put is a single upsert that bumps version atomically
//   - Readers compare versions, never timestamps, to decide if a value is new
//
// Last Write Wins:
//   - There is no compare-and-swap; the last committed Put is the value
//   - blob_history records which instance wrote each version
//
// Change Notification:
//   - Watch polls PRAGMA data_version, which changes only when another
//     connection commits, so an instance is not woken by its own writes
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Memory implements the same contract in process for tests.
package store
