package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Endpoint.URL == "" {
		return errors.New("endpoint.url is required")
	}
	if !strings.HasPrefix(c.Endpoint.URL, "ws://") && !strings.HasPrefix(c.Endpoint.URL, "wss://") {
		return fmt.Errorf("endpoint.url must be a ws:// or wss:// URL, got %q", c.Endpoint.URL)
	}

	if len(c.Operations) == 0 {
		return errors.New("at least one operation is required")
	}
	for i, op := range c.Operations {
		if strings.TrimSpace(op.Query) == "" {
			return fmt.Errorf("operations[%d] (%s): query is required", i, op.Name)
		}
	}

	if c.Socket.RetryDelay < 0 {
		return errors.New("socket.retry_delay must not be negative")
	}

	return nil
}
