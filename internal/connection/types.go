package connection

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrStaleConnection  = errors.New("connection stale (no ping)")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

// State is the connection lifecycle state, owned solely by the Manager.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateStreaming
	StateReconnecting
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Channel names carried by feed frames.
const (
	ChannelMarkets     = "markets"
	ChannelOrderbook   = "orderbook"
	ChannelSubaccounts = "subaccounts"
)

// Subscription describes one channel subscription, created at startup and
// re-sent on every open.
type Subscription struct {
	Channel string // "markets", "orderbook", "subaccounts"
	ID      string // Instrument or subaccount id; empty for venue-wide channels
}

// subscribeFrame is the outbound subscribe message.
type subscribeFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	ID      string `json:"id,omitempty"`
}

// frame is the inbound wire envelope.
type frame struct {
	Type     string          `json:"type"` // "connected", "subscribed", "channel_data"
	Channel  string          `json:"channel"`
	ID       string          `json:"id"`
	Version  string          `json:"version"`
	Contents json.RawMessage `json:"contents"`
}

// MessageKind distinguishes full snapshots from incremental diffs.
type MessageKind int

const (
	KindSnapshot MessageKind = iota
	KindIncremental
)

// Message is a decoded feed message handed to the dispatch point.
type Message struct {
	Kind       MessageKind
	Channel    string
	ID         string          // Instrument/subaccount id, empty for venue-wide channels
	Version    string          // Incremental version token, empty on snapshots
	Contents   json.RawMessage // Channel-shaped payload
	ReceivedAt time.Time       // Local timestamp when the frame was read
	VersionGap bool            // True if a version-token gap preceded this message
}

// TimestampedMessage wraps raw message data with a receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from the WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL
	PingInterval time.Duration // How often to send a keepalive ping
	PingTimeout  time.Duration // Max time without ping/pong before the connection is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL           string         // WebSocket URL
	Subscriptions []Subscription // Channels subscribed on every open
	PingInterval  time.Duration  // Heartbeat interval
	RotateAfter   time.Duration  // Forced connection rotation period
	MaxAttempts   int            // Reconnect attempt cap
	WriteTimeout  time.Duration  // Write deadline for sends
	BufferSize    int            // Client message buffer size
	MessageBuffer int            // Dispatch channel buffer size
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		PingInterval:  30 * time.Second,
		RotateAfter:   24 * time.Hour,
		MaxAttempts:   10,
		WriteTimeout:  5 * time.Second,
		BufferSize:    1000,
		MessageBuffer: 1000,
	}
}
