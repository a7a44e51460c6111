package cablelink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// streamState tracks where a stream is in its lifecycle, for logging.
type streamState int

const (
	stateNew streamState = iota
	stateConnected
	stateSubscribed
	stateCannotConnect
	stateConnectionLost
)

func (s streamState) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateConnected:
		return "connected"
	case stateSubscribed:
		return "subscribed"
	case stateCannotConnect:
		return "cannot_connect"
	case stateConnectionLost:
		return "connection_lost"
	}
	return "unknown"
}

// coordinator drives one logical operation through the
// connect → subscribe → execute → deliver cycle. All events for the stream
// arrive on one conduit and are handled sequentially, so ordering is
// preserved and no locking is needed around the cycle itself.
type coordinator struct {
	cfg    *Config
	op     Operation
	logger *slog.Logger

	mgr   *connectionManager
	retry *retryPolicy

	ctx       context.Context
	events    chan event
	out       *responseBuffer
	done      chan struct{}
	channelID string

	state streamState
}

// run issues the initial connect and then consumes the conduit until the
// stream is closed. Connection failures re-enter the retry cycle forever;
// they are never surfaced to the consumer.
func (c *coordinator) run() {
	c.mgr.connect(c.ctx, c.events, c.done)

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *coordinator) handle(ev event) {
	switch ev.kind {
	case eventConnected:
		c.state = stateConnected
		c.logger.Debug("connected")
		c.subscribe()

	case eventSubscribed:
		c.state = stateSubscribed
		c.logger.Debug("subscription confirmed")
		c.execute()

	case eventRejected:
		c.logger.Warn("subscription rejected", "channel", c.cfg.ChannelName)

	case eventMessage:
		c.deliver(ev.payload)

	case eventCannotConnect, eventConnectionLost:
		if ev.kind == eventCannotConnect {
			c.state = stateCannotConnect
		} else {
			c.state = stateConnectionLost
		}
		c.logger.Warn("connection unavailable",
			"state", c.state,
			"error", ev.err,
			"retry_in", c.cfg.RetryDelay,
		)
		c.scheduleReconnect()
	}
}

func (c *coordinator) scheduleReconnect() {
	select {
	case <-c.done:
		// A queued loss event can still be handled while teardown runs;
		// it must not arm a fresh timer.
		return
	default:
	}

	c.retry.schedule(func() {
		select {
		case <-c.done:
			return
		default:
		}
		c.mgr.connect(c.ctx, c.events, c.done)
	})
}

// subscribe issues the subscribe command for this stream's channel
// identifier. Channel params are resolved freshly here, and again for the
// execute call; the supplier's value may legitimately change between the
// two resolutions.
func (c *coordinator) subscribe() {
	conn := c.mgr.active()
	if conn == nil {
		// Teardown released the slot while this event was queued.
		c.logger.Debug("no active connection, skipping subscribe")
		return
	}

	identifier, err := c.identifier()
	if err != nil {
		c.logger.Warn("channel params resolution failed", "error", err)
		c.scheduleReconnect()
		return
	}

	if err := conn.Subscribe(identifier); err != nil {
		// The dying connection will surface as connection_lost.
		c.logger.Warn("subscribe command failed", "error", err)
	}
}

// execute performs the configured action carrying the serialized operation.
func (c *coordinator) execute() {
	conn := c.mgr.active()
	if conn == nil {
		c.logger.Debug("no active connection, skipping execute")
		return
	}

	identifier, err := c.identifier()
	if err != nil {
		c.logger.Warn("channel params resolution failed", "error", err)
		c.scheduleReconnect()
		return
	}

	params, err := c.cfg.Serializer.Serialize(c.op)
	if err != nil {
		// A malformed operation is a caller bug, not a connectivity
		// problem; retrying cannot fix it.
		c.logger.Error("operation serialization failed", "error", err)
		return
	}

	data := make(map[string]any, len(params)+1)
	data["action"] = c.cfg.ActionName
	for k, v := range params {
		data[k] = v
	}

	if err := conn.Perform(identifier, data); err != nil {
		c.logger.Warn("execute action failed", "error", err)
	}
}

// deliver forwards one broadcast into the output buffer. Every message the
// subscription receives is forwarded; the link does not filter or interpret
// result contents, including GraphQL error payloads.
func (c *coordinator) deliver(payload json.RawMessage) {
	var broadcast struct {
		Result json.RawMessage `json:"result"`
		More   bool            `json:"more"`
	}
	if err := json.Unmarshal(payload, &broadcast); err != nil {
		c.logger.Warn("unparseable broadcast", "error", err)
		return
	}

	result := broadcast.Result
	if len(result) == 0 {
		result = json.RawMessage("null")
	}

	resp, err := c.cfg.Parser.Parse(result)
	if err != nil {
		c.logger.Warn("unparseable result payload", "error", err)
		return
	}

	c.out.push(resp)
}

// identifier builds the JSON channel descriptor: channel class, the
// per-stream channel id, and the currently resolved channel params.
func (c *coordinator) identifier() (string, error) {
	desc := map[string]any{
		"channel":   c.cfg.ChannelName,
		"channelId": c.channelID,
	}

	if c.cfg.ChannelParamsSupplier != nil {
		params, err := c.cfg.ChannelParamsSupplier(c.ctx)
		if err != nil {
			return "", fmt.Errorf("resolve channel params: %w", err)
		}
		for k, v := range params {
			desc[k] = v
		}
	}

	data, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("encode channel identifier: %w", err)
	}
	return string(data), nil
}
