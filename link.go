package cablelink

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/khaiql/graphql-action-cable-link/actioncable"
)

// Link is a subscription transport for one cable endpoint. It is cheap and
// safe to share; every Subscribe call builds fully independent per-stream
// state (connection slot, retry timer, event conduit).
type Link struct {
	cfg    Config
	logger *slog.Logger
	dial   dialFunc
}

// NewLink validates the configuration and returns a Link.
func NewLink(cfg Config) (*Link, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Link{
		cfg:    cfg,
		logger: cfg.Logger,
	}
	l.dial = l.cableDial
	return l, nil
}

// cableDial is the production dial path.
func (l *Link) cableDial(ctx context.Context, url string, header http.Header) (socketConn, error) {
	conn, err := actioncable.Dial(ctx, url, header, actioncable.Config{
		HandshakeTimeout: l.cfg.HandshakeTimeout,
		PingTimeout:      l.cfg.PingTimeout,
		WriteTimeout:     l.cfg.WriteTimeout,
		BufferSize:       l.cfg.FrameBufferSize,
	}, l.logger)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Subscribe creates a stream for the operation. The stream is lazy: no
// connection is attempted until the first Responses call. Cancelling ctx
// closes the stream.
func (l *Link) Subscribe(ctx context.Context, op Operation) *Stream {
	ctx, cancel := context.WithCancel(ctx)

	logger := l.logger.With("channel", l.cfg.ChannelName)
	s := &Stream{
		logger: logger,
		buf:    newResponseBuffer(16),
		out:    make(chan Response),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	s.coord = &coordinator{
		cfg:       &l.cfg,
		op:        op,
		logger:    logger,
		mgr:       newConnectionManager(&l.cfg, logger, l.dial),
		retry:     newRetryPolicy(l.cfg.RetryDelay),
		ctx:       ctx,
		events:    make(chan event, 16),
		out:       s.buf,
		done:      s.done,
		channelID: uuid.NewString(),
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	return s
}

// Stream is the per-operation response sequence. It has no natural end; a
// GraphQL subscription may emit indefinitely. It ends only via Close or
// cancellation of the Subscribe context.
type Stream struct {
	logger *slog.Logger
	coord  *coordinator
	buf    *responseBuffer
	out    chan Response
	done   chan struct{}
	cancel context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once
}

// Responses returns the response channel. The first call starts the
// connection machinery; until then nothing touches the network. The channel
// is closed only after the stream is closed.
func (s *Stream) Responses() <-chan Response {
	s.startOnce.Do(s.start)
	return s.out
}

func (s *Stream) start() {
	select {
	case <-s.done:
		// Closed before ever being consumed.
		close(s.out)
		return
	default:
	}

	go s.coord.run()
	go s.forward()
}

// forward drains the growable buffer into the consumer-facing channel, so a
// slow consumer never stalls the coordinator loop.
func (s *Stream) forward() {
	defer close(s.out)

	for {
		resp, ok := s.buf.next()
		if !ok {
			return
		}
		select {
		case s.out <- resp:
		case <-s.done:
			return
		}
	}
}

// Close tears the stream down: disconnects the active connection, cancels
// any pending retry timer, and shuts the event conduit, in that order. Safe
// to call multiple times; teardown runs exactly once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.coord.mgr.disconnect()
		s.coord.retry.cancel()
		close(s.done)
		s.buf.close()
		s.logger.Debug("stream closed")
	})
}
