package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *StreamerConfig) Validate() error {
	if c.Account.Address == "" {
		return errors.New("account.address is required")
	}
	if c.Account.Symbol == "" {
		return errors.New("account.symbol is required")
	}

	if len(c.Symbols) == 0 {
		return errors.New("at least one symbol is required")
	}

	if c.Connection.MaxAttempts < 1 {
		return errors.New("connection.max_attempts must be >= 1")
	}
	if c.Connection.BufferSize < 1 {
		return errors.New("connection.buffer_size must be >= 1")
	}
	if c.Connection.MessageBuffer < 1 {
		return errors.New("connection.message_buffer must be >= 1")
	}

	if c.API.RateLimit <= 0 {
		return fmt.Errorf("api.rate_limit must be > 0, got %v", c.API.RateLimit)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug/info/warn/error, got %q", c.Log.Level)
	}

	return nil
}
