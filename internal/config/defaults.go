package config

import (
	"fmt"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultChannel          = "GraphqlChannel"
	DefaultAction           = "execute"
	DefaultAuthHeader       = "Authorization"
	DefaultRetryDelay       = 2 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingTimeout      = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
)

func (c *Config) applyDefaults() {
	if c.Endpoint.Channel == "" {
		c.Endpoint.Channel = DefaultChannel
	}
	if c.Endpoint.Action == "" {
		c.Endpoint.Action = DefaultAction
	}
	if c.Endpoint.AuthHeader == "" {
		c.Endpoint.AuthHeader = DefaultAuthHeader
	}

	if c.Socket.RetryDelay == 0 {
		c.Socket.RetryDelay = DefaultRetryDelay
	}
	if c.Socket.HandshakeTimeout == 0 {
		c.Socket.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Socket.PingTimeout == 0 {
		c.Socket.PingTimeout = DefaultPingTimeout
	}
	if c.Socket.WriteTimeout == 0 {
		c.Socket.WriteTimeout = DefaultWriteTimeout
	}

	for i := range c.Operations {
		if c.Operations[i].Name == "" {
			c.Operations[i].Name = fmt.Sprintf("operation-%d", i)
		}
	}
}
