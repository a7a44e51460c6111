// cabletap subscribes GraphQL operations over a Rails Action Cable endpoint
// and streams results to the console as JSON lines.
// Usage: go run ./cmd/cabletap --config configs/cabletap.example.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	cablelink "github.com/khaiql/graphql-action-cable-link"
	"github.com/khaiql/graphql-action-cable-link/internal/config"
	"github.com/khaiql/graphql-action-cable-link/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/cabletap.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("cabletap", version.String())
		return
	}

	// Setup logger
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	// Load config
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	link, err := cablelink.NewLink(linkConfig(cfg, logger))
	if err != nil {
		logger.Error("failed to create link", "error", err)
		os.Exit(1)
	}

	out := &jsonPrinter{enc: json.NewEncoder(os.Stdout)}

	g, ctx := errgroup.WithContext(ctx)
	for _, op := range cfg.Operations {
		op := op
		g.Go(func() error {
			opLogger := logger.With("operation", op.Name)
			opLogger.Info("subscribing")

			stream := link.Subscribe(ctx, cablelink.Operation{
				Query:         op.Query,
				Variables:     op.Variables,
				OperationName: op.OperationName,
			})
			defer stream.Close()

			for resp := range stream.Responses() {
				if err := out.print(op.Name, resp); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("stream failed", "error", err)
		os.Exit(1)
	}
	logger.Info("all streams closed")
}

// linkConfig maps the CLI config onto the library configuration. The token
// env var is read through a supplier so a rotated value is picked up on
// every reconnect.
func linkConfig(cfg *config.Config, logger *slog.Logger) cablelink.Config {
	lc := cablelink.Config{
		URL:              cfg.Endpoint.URL,
		ChannelName:      cfg.Endpoint.Channel,
		ActionName:       cfg.Endpoint.Action,
		AuthHeaderKey:    cfg.Endpoint.AuthHeader,
		DefaultHeaders:   cfg.Endpoint.Headers,
		RetryDelay:       cfg.Socket.RetryDelay,
		HandshakeTimeout: cfg.Socket.HandshakeTimeout,
		PingTimeout:      cfg.Socket.PingTimeout,
		WriteTimeout:     cfg.Socket.WriteTimeout,
		Logger:           logger,
	}

	if env := cfg.Endpoint.TokenEnv; env != "" {
		lc.TokenSupplier = func(ctx context.Context) (string, error) {
			return os.Getenv(env), nil
		}
	}

	return lc
}

type outputLine struct {
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data,omitempty"`
	Errors    json.RawMessage `json:"errors,omitempty"`
}

// jsonPrinter serializes writes from concurrent streams onto stdout.
type jsonPrinter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (p *jsonPrinter) print(name string, resp cablelink.Response) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(outputLine{
		Operation: name,
		Data:      resp.Data,
		Errors:    resp.Errors,
	})
}
