package actioncable

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrNoWelcome       = errors.New("no welcome frame received")
	ErrServerRefused   = errors.New("server sent disconnect during handshake")
)

// FrameType identifies a server frame delivered to the consumer.
type FrameType string

const (
	FrameConfirmSubscription FrameType = "confirm_subscription"
	FrameRejectSubscription  FrameType = "reject_subscription"
	FrameDisconnect          FrameType = "disconnect"

	// FrameMessage is a channel broadcast. Action Cable sends these without
	// a "type" field, only identifier + message.
	FrameMessage FrameType = "message"
)

// Frame is a server frame after protocol-level frames (welcome, ping) have
// been consumed by the client.
type Frame struct {
	Type       FrameType
	Identifier string          // JSON-encoded channel descriptor
	Message    json.RawMessage // payload for FrameMessage
	Reason     string          // populated for FrameDisconnect
	Reconnect  bool            // server hint on FrameDisconnect
}

// serverFrame is the wire shape of every inbound frame.
type serverFrame struct {
	Type       string          `json:"type"`
	Identifier string          `json:"identifier"`
	Message    json.RawMessage `json:"message"`
	Reason     string          `json:"reason"`
	Reconnect  *bool           `json:"reconnect"`
}

// command is the wire shape of every outbound frame.
type command struct {
	Command    string `json:"command"`
	Identifier string `json:"identifier"`
	Data       string `json:"data,omitempty"`
}

// Config configures a cable client.
type Config struct {
	HandshakeTimeout time.Duration // Max time to dial and receive the welcome frame
	PingTimeout      time.Duration // Max time without a server ping before the connection is stale
	WriteTimeout     time.Duration // Write deadline for outbound commands
	BufferSize       int           // Frame channel buffer size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		PingTimeout:      10 * time.Second, // Action Cable servers ping every 3s
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = def.PingTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
}
