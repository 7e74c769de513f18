package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultIndexerURL      = "https://indexer.dydx.trade"
	DefaultWSURL           = "wss://indexer.dydx.trade/v4/ws"
	DefaultAPITimeout      = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultRateLimit       = 10.0
	DefaultRateBurst       = 20
	DefaultCollateralAsset = "USDC"
	DefaultPingInterval    = 30 * time.Second
	DefaultRotateAfter     = 24 * time.Hour
	DefaultMaxAttempts     = 10
	DefaultWriteTimeout    = 5 * time.Second
	DefaultBufferSize      = 1000
	DefaultMessageBuffer   = 1000
	DefaultLogLevel        = "info"
	DefaultLogMaxSizeMB    = 100
	DefaultLogMaxBackups   = 5
)

func (c *StreamerConfig) applyDefaults() {
	// API defaults
	if c.API.IndexerURL == "" {
		c.API.IndexerURL = DefaultIndexerURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RateLimit == 0 {
		c.API.RateLimit = DefaultRateLimit
	}
	if c.API.RateBurst == 0 {
		c.API.RateBurst = DefaultRateBurst
	}

	// Account defaults
	if c.Account.CollateralAsset == "" {
		c.Account.CollateralAsset = DefaultCollateralAsset
	}

	// Connection defaults
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.RotateAfter == 0 {
		c.Connection.RotateAfter = DefaultRotateAfter
	}
	if c.Connection.MaxAttempts == 0 {
		c.Connection.MaxAttempts = DefaultMaxAttempts
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}
	if c.Connection.MessageBuffer == 0 {
		c.Connection.MessageBuffer = DefaultMessageBuffer
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = DefaultLogMaxBackups
	}
}
