package cablelink

import (
	"context"
	"fmt"
	"net/http"
)

// resolveHeaders computes the headers for one connection attempt: the static
// defaults with supplier output merged over them, then the token (if any)
// under AuthHeaderKey. Called freshly per attempt, never cached, so rotated
// credentials are picked up on reconnect.
func resolveHeaders(ctx context.Context, cfg *Config) (http.Header, error) {
	header := http.Header{}
	for k, v := range cfg.DefaultHeaders {
		header.Set(k, v)
	}

	if cfg.HeaderSupplier != nil {
		dynamic, err := cfg.HeaderSupplier(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve headers: %w", err)
		}
		for k, v := range dynamic {
			header.Set(k, v)
		}
	}

	if cfg.TokenSupplier != nil {
		token, err := cfg.TokenSupplier(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve token: %w", err)
		}
		if token != "" {
			header.Set(cfg.AuthHeaderKey, token)
		}
	}

	return header, nil
}
