// Package api provides the read-only indexer REST client.
//
// The core consumes it through two lookups:
//   - LatestDailyClose: reference price for notional/PnL math
//   - RecentFills: historical fills used to seed the fill ledger
//
// Requests are rate limited and retried with jittered exponential backoff.
package api
