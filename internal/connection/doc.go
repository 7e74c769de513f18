// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the single push-feed WebSocket connection
//   - Sends one subscribe frame per configured channel on open
//   - Heartbeats every 30s and rotates the connection every 24h
//   - Reconnects with exponential backoff (2^attempt seconds, capped)
//   - Runs registered teardown hooks synchronously on every close
//   - Decodes frames and delivers them to a single dispatch point
package connection
