// Package model provides the record types shared by every carta component.
//
// This package contains type definitions and small value helpers only. All
// other internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - Money is whole currency units (int64); only the transfer fee is fractional
//   - Record identity is the ID field and never changes after creation
//   - All JSON tags use snake_case
//   - Timestamps are UTC without monotonic readings so they round-trip exactly
package model
