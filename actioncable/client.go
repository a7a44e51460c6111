package actioncable

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single Action Cable connection.
type Client struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	frames chan Frame
	errors chan error
	done   chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	lastPingAt time.Time
	closed     bool
}

// Dial connects to an Action Cable endpoint and completes the welcome
// handshake. The returned client is ready to subscribe; its read loop and
// staleness monitor are already running.
func Dial(ctx context.Context, url string, header http.Header, cfg Config, logger *slog.Logger) (*Client, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial cable endpoint: %w", err)
	}

	if err := awaitWelcome(conn, cfg.HandshakeTimeout); err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		cfg:        cfg,
		logger:     logger,
		conn:       conn,
		frames:     make(chan Frame, cfg.BufferSize),
		errors:     make(chan error, 1),
		done:       make(chan struct{}),
		lastPingAt: time.Now(),
	}

	go c.readLoop()
	go c.staleLoop()

	c.logger.Debug("cable connected", "url", url)

	return c, nil
}

// awaitWelcome reads frames until the server's welcome arrives. The server
// sends it immediately after the upgrade; anything else first is a refusal.
func awaitWelcome(conn *websocket.Conn, timeout time.Duration) error {
	conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await welcome: %w", err)
		}

		var f serverFrame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		switch f.Type {
		case "welcome":
			return nil
		case "disconnect":
			return fmt.Errorf("%w: %s", ErrServerRefused, f.Reason)
		case "ping":
			continue
		default:
			return ErrNoWelcome
		}
	}
}

// Subscribe sends a subscribe command for the given channel identifier.
// Confirmation arrives later as a FrameConfirmSubscription frame.
func (c *Client) Subscribe(identifier string) error {
	return c.send(command{Command: "subscribe", Identifier: identifier})
}

// Unsubscribe sends an unsubscribe command for the given channel identifier.
func (c *Client) Unsubscribe(identifier string) error {
	return c.send(command{Command: "unsubscribe", Identifier: identifier})
}

// Perform invokes an action on a subscribed channel. Action Cable requires
// the data payload to be a JSON-encoded string, not a nested object.
func (c *Client) Perform(identifier string, data map[string]any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode action data: %w", err)
	}
	return c.send(command{Command: "message", Identifier: identifier, Data: string(encoded)})
}

// Frames returns the channel of server frames for this connection.
func (c *Client) Frames() <-chan Frame {
	return c.frames
}

// Errors returns the channel of connection errors.
func (c *Client) Errors() <-chan error {
	return c.errors
}

// Close gracefully closes the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)

	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

// send writes a command with the configured write deadline.
func (c *Client) send(cmd command) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrNotConnected
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames from the websocket and forwards them. Pings only
// refresh the staleness clock; welcome duplicates are dropped.
func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
			default:
				select {
				case c.errors <- err:
				default:
				}
			}
			return
		}

		var f serverFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Debug("dropping unparseable frame", "error", err)
			continue
		}

		switch f.Type {
		case "ping":
			c.mu.Lock()
			c.lastPingAt = time.Now()
			c.mu.Unlock()
			continue
		case "welcome":
			continue
		}

		frame := Frame{
			Identifier: f.Identifier,
			Message:    f.Message,
			Reason:     f.Reason,
		}
		switch f.Type {
		case "confirm_subscription":
			frame.Type = FrameConfirmSubscription
		case "reject_subscription":
			frame.Type = FrameRejectSubscription
		case "disconnect":
			frame.Type = FrameDisconnect
			if f.Reconnect != nil {
				frame.Reconnect = *f.Reconnect
			}
		case "":
			frame.Type = FrameMessage
		default:
			c.logger.Debug("dropping unknown frame type", "type", f.Type)
			continue
		}

		select {
		case c.frames <- frame:
		case <-c.done:
			return
		}
	}
}

// staleLoop watches for missed server pings. Action Cable servers ping on a
// short interval; silence past PingTimeout means the connection is dead even
// if the TCP socket has not noticed yet.
func (c *Client) staleLoop() {
	interval := c.cfg.PingTimeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			lastPing := c.lastPingAt
			c.mu.RUnlock()

			if time.Since(lastPing) > c.cfg.PingTimeout {
				c.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", c.cfg.PingTimeout,
				)
				select {
				case c.errors <- ErrStaleConnection:
				default:
				}
				return
			}
		}
	}
}
