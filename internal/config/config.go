package config

import "time"

// Config is the root configuration for a cabletap run.
type Config struct {
	Endpoint   EndpointConfig    `yaml:"endpoint"`
	Socket     SocketConfig      `yaml:"socket"`
	Operations []OperationConfig `yaml:"operations"`
}

// EndpointConfig describes the cable endpoint and how to authenticate.
type EndpointConfig struct {
	URL        string            `yaml:"url"`
	Channel    string            `yaml:"channel"`
	Action     string            `yaml:"action"`
	AuthHeader string            `yaml:"auth_header"`
	TokenEnv   string            `yaml:"token_env"` // env var read freshly per connection attempt
	Headers    map[string]string `yaml:"headers"`   // static default headers
}

// SocketConfig holds transport tuning.
type SocketConfig struct {
	RetryDelay       time.Duration `yaml:"retry_delay"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

// OperationConfig is one GraphQL subscription to run.
type OperationConfig struct {
	Name          string         `yaml:"name"`
	Query         string         `yaml:"query"`
	OperationName string         `yaml:"operation_name"`
	Variables     map[string]any `yaml:"variables"`
}
