package cablelink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/khaiql/graphql-action-cable-link/actioncable"
)

var errConnectionClosed = errors.New("connection closed")

// socketConn is the cable connection surface the link depends on.
// *actioncable.Client satisfies it; tests substitute fakes.
type socketConn interface {
	Subscribe(identifier string) error
	Perform(identifier string, data map[string]any) error
	Frames() <-chan actioncable.Frame
	Errors() <-chan error
	Close() error
}

// dialFunc establishes one cable connection with the given headers.
type dialFunc func(ctx context.Context, url string, header http.Header) (socketConn, error)

// connectionManager owns the single active connection slot for one stream.
// connect resolves headers freshly, dials, and emits exactly one terminal
// lifecycle event per attempt into the sink: connected on success,
// cannot_connect on a failed attempt, or connection_lost when an
// established connection later drops. It never retries on its own.
type connectionManager struct {
	cfg    *Config
	logger *slog.Logger
	dial   dialFunc

	mu   sync.Mutex
	conn socketConn
}

func newConnectionManager(cfg *Config, logger *slog.Logger, dial dialFunc) *connectionManager {
	return &connectionManager{
		cfg:    cfg,
		logger: logger,
		dial:   dial,
	}
}

// connect starts one asynchronous connection attempt.
func (m *connectionManager) connect(ctx context.Context, sink chan<- event, done <-chan struct{}) {
	go m.attempt(ctx, sink, done)
}

func (m *connectionManager) attempt(ctx context.Context, sink chan<- event, done <-chan struct{}) {
	header, err := resolveHeaders(ctx, m.cfg)
	if err != nil {
		// Auth resolution failure fails the attempt; the retry cycle
		// handles it like any other connection failure.
		m.logger.Warn("header resolution failed", "error", err)
		m.emit(sink, done, event{kind: eventCannotConnect, err: err})
		return
	}

	conn, err := m.dial(ctx, m.cfg.URL, header)
	if err != nil {
		m.emit(sink, done, event{kind: eventCannotConnect, err: err})
		return
	}

	select {
	case <-done:
		// Stream closed while dialing; release the late connection.
		conn.Close()
		return
	default:
	}

	m.mu.Lock()
	prev := m.conn
	m.conn = conn
	m.mu.Unlock()
	if prev != nil {
		// Supersede any leftover connection before the new one is used.
		prev.Close()
	}

	m.emit(sink, done, event{kind: eventConnected})
	m.pump(conn, sink, done)
}

// pump adapts the connection's frame and error channels into tagged events
// on the stream's single ordered conduit. It exits after emitting a
// terminal connection_lost event.
func (m *connectionManager) pump(conn socketConn, sink chan<- event, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return

		case err := <-conn.Errors():
			m.emit(sink, done, event{kind: eventConnectionLost, err: err})
			return

		case f, ok := <-conn.Frames():
			if !ok {
				m.emit(sink, done, event{kind: eventConnectionLost, err: errConnectionClosed})
				return
			}

			switch f.Type {
			case actioncable.FrameConfirmSubscription:
				m.emit(sink, done, event{kind: eventSubscribed})
			case actioncable.FrameRejectSubscription:
				m.emit(sink, done, event{kind: eventRejected})
			case actioncable.FrameDisconnect:
				m.emit(sink, done, event{
					kind: eventConnectionLost,
					err:  fmt.Errorf("server disconnect: %s", f.Reason),
				})
				return
			case actioncable.FrameMessage:
				m.emit(sink, done, event{kind: eventMessage, payload: f.Message})
			}
		}
	}
}

func (m *connectionManager) emit(sink chan<- event, done <-chan struct{}, ev event) {
	select {
	case sink <- ev:
	case <-done:
	}
}

// active returns the current connection, or nil when none is established.
func (m *connectionManager) active() socketConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// disconnect releases the active connection. Idempotent; a no-op when no
// connection is present.
func (m *connectionManager) disconnect() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
