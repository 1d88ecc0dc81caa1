// Package order turns a cart into a priced order and hands it to a Sink.
//
// Build reads the current state snapshot once: the price list, the cart and
// the active delivery zones all come from the same revision, so totals never
// mix prices from two different versions of the admin state.
//
// Submission is fire-and-forget. Sinks report failures to the caller, which
// logs them; no retry or acknowledgement protocol exists.
package order
