// Package book implements the Order Book View: per-symbol bounded, sorted
// bid/ask ladders built from a full snapshot plus incremental diffs.
//
// Invariants per side:
//   - bids strictly descending by price, asks strictly ascending
//   - no duplicate prices, every resting size > 0
//   - at most 20 levels retained
package book
