// Package snapshot defines the replicated admin payload and its codecs.
//
// The payload is the unit of replication: every write to the shared store
// carries the whole value, never a diff. Two codecs exist:
//
//   - Encode/Decode: the stored JSON form. Decode is strict and rejects
//     payloads written by anything other than this format version.
//   - Canonical/Fingerprint: a deterministic byte form (sorted keys, NFC
//     strings, no HTML escaping) and its SHA-256 digest, used to decide
//     whether an external payload differs from the local one.
package snapshot
