// Package model defines shared data types used across the streamer.
//
// Conventions:
//   - Prices and sizes: float64, parsed from the venue's decimal strings
//   - Timestamps: time.Time for wall-clock values, int64 epoch seconds for
//     order expiries (0 = no absolute expiry)
//   - IDs: string client order ids and instrument symbols (e.g., "BTC-USD")
package model
