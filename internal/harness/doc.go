// Package harness runs replication scenarios against several carta
// instances that share one store.
//
// Every instance is a real state.Container wired to a real replica.Service.
// The instances share a store.Memory, a manual clock and per-instance
// sequence ID generators, so a scenario produces the same trace on every
// run. Nothing runs in the background: remote changes reach an instance
// only through an explicit sync step.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: price_update_propagates
//	description: "A price change on one instance reaches the other"
//	instances: [a, b]
//	steps:
//	  - instance: a
//	    dispatch: update_prices
//	    args:
//	      prices: { movie_price: 90, series_price_per_season: 300,
//	                novel_price_per_chapter: 5, transfer_fee_percent: 10 }
//	    expect: { outcome: changed, notification: "Prices updated" }
//	  - instance: b
//	    sync: true
//	    expect: { outcome: adopted }
//	assertions:
//	  - type: converged
//	  - type: final_state
//	    instance: b
//	    table: prices
//	    expect: { movie_price: 90 }
//
// A step names its instance and does exactly one of: dispatch an action
// (args are decoded into the action struct), sync from the store, advance
// the clock, or set or clear a store write error.
//
// # Assertion Types
//
//   - converged: the listed instances (default all) hold the same payload
//   - final_state: a row of prices, zones, novels, cart or notifications
//     matches where and expect; absent: true inverts the check
//   - cart_total: cash, transfer and total of an instance's cart
//   - trace_contains: a trace entry with the given label exists
//   - trace_order: labels appear in the given order
//   - trace_count: a label appears exactly count times
//
// Trace labels are the action kind for dispatch entries, the topic for
// event entries and "sync" for sync entries. trace_order entries may be
// qualified with an instance as "b:prices-changed".
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON of the trace against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
