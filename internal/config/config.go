// Package config defines and loads the streamer configuration.
package config

import "time"

// StreamerConfig is the full configuration for the streamer binary.
type StreamerConfig struct {
	API        APIConfig        `yaml:"api"`
	Account    AccountConfig    `yaml:"account"`
	Symbols    []string         `yaml:"symbols"`
	Connection ConnectionConfig `yaml:"connection"`
	Log        LogConfig        `yaml:"log"`
}

// APIConfig configures the indexer REST client.
type APIConfig struct {
	IndexerURL string        `yaml:"indexer_url"`
	WSURL      string        `yaml:"ws_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RateLimit  float64       `yaml:"rate_limit"`
	RateBurst  int           `yaml:"rate_burst"`
}

// AccountConfig identifies the subaccount and tracked instrument.
type AccountConfig struct {
	Address         string `yaml:"address"`
	Symbol          string `yaml:"symbol"`
	CollateralAsset string `yaml:"collateral_asset"`
}

// ConnectionConfig configures the feed connection lifecycle.
type ConnectionConfig struct {
	PingInterval  time.Duration `yaml:"ping_interval"`
	RotateAfter   time.Duration `yaml:"rotate_after"`
	MaxAttempts   int           `yaml:"max_attempts"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	BufferSize    int           `yaml:"buffer_size"`
	MessageBuffer int           `yaml:"message_buffer"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error
	File       string `yaml:"file"`  // Empty = stdout only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}
