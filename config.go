package cablelink

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Defaults for the configuration surface.
const (
	DefaultChannelName   = "GraphqlChannel"
	DefaultActionName    = "execute"
	DefaultAuthHeaderKey = "Authorization"
	DefaultRetryDelay    = 2 * time.Second
)

// TokenSupplier returns a bearer token placed under AuthHeaderKey. It is
// invoked freshly before every connection attempt so rotated credentials
// take effect on reconnect. An empty token leaves the headers untouched.
type TokenSupplier func(ctx context.Context) (string, error)

// HeaderSupplier returns a full header mapping merged over DefaultHeaders.
// Like TokenSupplier it is invoked freshly before every connection attempt.
type HeaderSupplier func(ctx context.Context) (map[string]string, error)

// ChannelParamsSupplier returns extra parameters embedded in the channel
// identifier. It is resolved independently before the subscribe command and
// before the execute action; the two resolutions may legitimately differ.
type ChannelParamsSupplier func(ctx context.Context) (map[string]any, error)

// Config configures a Link. Immutable once passed to NewLink.
type Config struct {
	// URL is the cable endpoint (e.g. wss://example.com/cable). Required.
	URL string

	ChannelName   string // Action Cable channel class, default "GraphqlChannel"
	ActionName    string // channel action carrying the operation, default "execute"
	AuthHeaderKey string // header set from TokenSupplier, default "Authorization"

	// DefaultHeaders are always sent; supplier output is merged over them.
	DefaultHeaders map[string]string

	TokenSupplier         TokenSupplier
	HeaderSupplier        HeaderSupplier
	ChannelParamsSupplier ChannelParamsSupplier

	// RetryDelay is the fixed wait before a reconnect attempt. There is no
	// backoff growth and no attempt cap.
	RetryDelay time.Duration

	// Socket tuning, passed through to the cable client.
	HandshakeTimeout time.Duration
	PingTimeout      time.Duration
	WriteTimeout     time.Duration
	FrameBufferSize  int

	Serializer OperationSerializer // default: GraphQL query/variables/operationName
	Parser     ResponseParser      // default: GraphQL data/errors

	Logger *slog.Logger
}

// DefaultConfig returns a Config for the given endpoint with all defaults
// applied.
func DefaultConfig(url string) Config {
	cfg := Config{URL: url}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ChannelName == "" {
		c.ChannelName = DefaultChannelName
	}
	if c.ActionName == "" {
		c.ActionName = DefaultActionName
	}
	if c.AuthHeaderKey == "" {
		c.AuthHeaderKey = DefaultAuthHeaderKey
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Serializer == nil {
		c.Serializer = GraphQLSerializer{}
	}
	if c.Parser == nil {
		c.Parser = GraphQLParser{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("config: url is required")
	}
	return nil
}
