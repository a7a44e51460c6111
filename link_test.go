package cablelink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/khaiql/graphql-action-cable-link/actioncable"
)

// fakeConn is an in-memory socketConn recording every command.
type fakeConn struct {
	mu       sync.Mutex
	subs     []string
	performs []fakePerform
	closed   int

	frames chan actioncable.Frame
	errs   chan error
}

type fakePerform struct {
	identifier string
	data       map[string]any
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan actioncable.Frame, 16),
		errs:   make(chan error, 1),
	}
}

func (f *fakeConn) Subscribe(identifier string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, identifier)
	return nil
}

func (f *fakeConn) Perform(identifier string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.performs = append(f.performs, fakePerform{identifier: identifier, data: data})
	return nil
}

func (f *fakeConn) Frames() <-chan actioncable.Frame { return f.frames }
func (f *fakeConn) Errors() <-chan error             { return f.errs }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeConn) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeConn) performCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.performs)
}

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) confirm() {
	f.frames <- actioncable.Frame{Type: actioncable.FrameConfirmSubscription}
}

func (f *fakeConn) broadcast(result string) {
	f.frames <- actioncable.Frame{
		Type:    actioncable.FrameMessage,
		Message: json.RawMessage(`{"result":` + result + `,"more":true}`),
	}
}

// fakeDialer fails the first failFirst attempts, then hands out fakeConns.
type fakeDialer struct {
	mu        sync.Mutex
	failFirst int
	attempts  int
	conns     []*fakeConn
}

func (d *fakeDialer) dial(ctx context.Context, url string, header http.Header) (socketConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.attempts++
	if d.attempts <= d.failFirst {
		return nil, errors.New("dial refused")
	}

	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

const testRetryDelay = 30 * time.Millisecond

func newTestLink(t *testing.T, dial dialFunc, mutate func(*Config)) *Link {
	t.Helper()

	cfg := DefaultConfig("wss://chat.example.test/cable")
	cfg.RetryDelay = testRetryDelay
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if mutate != nil {
		mutate(&cfg)
	}

	link, err := NewLink(cfg)
	if err != nil {
		t.Fatalf("NewLink failed: %v", err)
	}
	link.dial = dial
	return link
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testOperation() Operation {
	return Operation{Query: "subscription { messageAdded { body } }"}
}

func TestStream_LazyUntilConsumed(t *testing.T) {
	dialer := &fakeDialer{}
	link := newTestLink(t, dialer.dial, nil)

	stream := link.Subscribe(context.Background(), testOperation())
	defer stream.Close()

	time.Sleep(50 * time.Millisecond)

	if got := dialer.attemptCount(); got != 0 {
		t.Errorf("connect attempts before consumption = %d, want 0", got)
	}

	stream.Responses()
	waitFor(t, "first connect attempt", func() bool { return dialer.attemptCount() == 1 })
}

func TestStream_RetryAfterCannotConnectThenDeliver(t *testing.T) {
	dialer := &fakeDialer{failFirst: 1}
	link := newTestLink(t, dialer.dial, nil)

	stream := link.Subscribe(context.Background(), testOperation())
	defer stream.Close()
	responses := stream.Responses()

	// First attempt fails; exactly one retry fires after the delay.
	waitFor(t, "retried connect attempt", func() bool { return dialer.attemptCount() == 2 })
	time.Sleep(3 * testRetryDelay)
	if got := dialer.attemptCount(); got != 2 {
		t.Errorf("attempts = %d, want 2 (no retries after success)", got)
	}

	conn := dialer.conn(0)
	waitFor(t, "subscribe command", func() bool { return conn.subscribeCount() == 1 })

	// Exactly one subscribe happens before any execute.
	if got := conn.performCount(); got != 0 {
		t.Errorf("performs before confirmation = %d, want 0", got)
	}

	conn.confirm()
	waitFor(t, "execute action", func() bool { return conn.performCount() == 1 })

	conn.mu.Lock()
	perform := conn.performs[0]
	subIdentifier := conn.subs[0]
	conn.mu.Unlock()

	if perform.data["action"] != DefaultActionName {
		t.Errorf("action = %v, want %q", perform.data["action"], DefaultActionName)
	}
	if perform.data["query"] != testOperation().Query {
		t.Errorf("query = %v, want serialized operation", perform.data["query"])
	}
	if perform.identifier != subIdentifier {
		t.Errorf("execute identifier %q differs from subscribe identifier %q",
			perform.identifier, subIdentifier)
	}

	var descriptor map[string]any
	if err := json.Unmarshal([]byte(subIdentifier), &descriptor); err != nil {
		t.Fatalf("identifier is not JSON: %v", err)
	}
	if descriptor["channel"] != DefaultChannelName {
		t.Errorf("identifier channel = %v, want %q", descriptor["channel"], DefaultChannelName)
	}
	if descriptor["channelId"] == "" {
		t.Error("identifier channelId is empty")
	}

	conn.broadcast(`{"data":{"x":1}}`)

	select {
	case resp := <-responses:
		var data map[string]int
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			t.Fatalf("unparseable response data: %v", err)
		}
		if data["x"] != 1 {
			t.Errorf("data.x = %d, want 1", data["x"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestStream_ResubscribesAfterConnectionLost(t *testing.T) {
	dialer := &fakeDialer{}
	link := newTestLink(t, dialer.dial, nil)

	stream := link.Subscribe(context.Background(), testOperation())
	defer stream.Close()
	stream.Responses()

	first := waitForConn(t, dialer, 0)
	waitFor(t, "first subscribe", func() bool { return first.subscribeCount() == 1 })
	first.confirm()
	waitFor(t, "first execute", func() bool { return first.performCount() == 1 })

	// Drop the connection; the stream reconnects and replays the
	// subscribe/execute sequence on the new connection.
	first.errs <- errors.New("connection reset")

	second := waitForConn(t, dialer, 1)
	waitFor(t, "resubscribe", func() bool { return second.subscribeCount() == 1 })
	second.confirm()
	waitFor(t, "re-execute", func() bool { return second.performCount() == 1 })

	if got := dialer.attemptCount(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func waitForConn(t *testing.T, dialer *fakeDialer, i int) *fakeConn {
	t.Helper()
	waitFor(t, "connection", func() bool { return dialer.connCount() > i })
	return dialer.conn(i)
}

func TestStream_TwoLossesScheduleOneRetry(t *testing.T) {
	dialer := &fakeDialer{}
	link := newTestLink(t, dialer.dial, nil)

	stream := link.Subscribe(context.Background(), testOperation())
	defer stream.Close()
	stream.Responses()

	first := waitForConn(t, dialer, 0)
	waitFor(t, "subscribe", func() bool { return first.subscribeCount() == 1 })

	// Two losses land within one retry window.
	first.errs <- errors.New("connection reset")
	stream.coord.events <- event{kind: eventConnectionLost, err: errors.New("duplicate loss")}

	time.Sleep(4 * testRetryDelay)

	if got := dialer.attemptCount(); got != 2 {
		t.Errorf("attempts = %d, want 2 (one retry for both losses)", got)
	}
}

func TestStream_CancelBeforeConnected(t *testing.T) {
	dialStarted := make(chan struct{}, 1)
	blockingDial := func(ctx context.Context, url string, header http.Header) (socketConn, error) {
		select {
		case dialStarted <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}

	link := newTestLink(t, blockingDial, nil)

	stream := link.Subscribe(context.Background(), testOperation())
	responses := stream.Responses()

	<-dialStarted
	stream.Close()

	// The dial was aborted; no connection, so no subscribe or execute ever
	// happened, and the response channel closes.
	select {
	case _, ok := <-responses:
		if ok {
			t.Error("received a response from a cancelled stream")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("response channel not closed after Close")
	}
}

func TestStream_CancelStopsPendingRetry(t *testing.T) {
	dialer := &fakeDialer{failFirst: 1000}
	link := newTestLink(t, dialer.dial, nil)

	stream := link.Subscribe(context.Background(), testOperation())
	stream.Responses()

	waitFor(t, "first failed attempt", func() bool { return dialer.attemptCount() >= 1 })
	attempts := dialer.attemptCount()
	stream.Close()

	time.Sleep(4 * testRetryDelay)

	if got := dialer.attemptCount(); got != attempts {
		t.Errorf("attempts after Close = %d, want %d (pending retry cancelled)", got, attempts)
	}

	stream.coord.retry.mu.Lock()
	pending := stream.coord.retry.pending
	stream.coord.retry.mu.Unlock()
	if pending {
		t.Error("retry still pending after Close")
	}
}

func TestStream_CloseDisconnectsExactlyOnce(t *testing.T) {
	dialer := &fakeDialer{}
	link := newTestLink(t, dialer.dial, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := link.Subscribe(ctx, testOperation())
	stream.Responses()

	conn := waitForConn(t, dialer, 0)
	waitFor(t, "subscribe", func() bool { return conn.subscribeCount() == 1 })

	stream.Close()
	stream.Close()
	cancel()

	time.Sleep(50 * time.Millisecond)

	if got := conn.closeCount(); got != 1 {
		t.Errorf("connection Close calls = %d, want 1", got)
	}
}

func TestStream_ContextCancelClosesStream(t *testing.T) {
	dialer := &fakeDialer{}
	link := newTestLink(t, dialer.dial, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stream := link.Subscribe(ctx, testOperation())
	responses := stream.Responses()

	conn := waitForConn(t, dialer, 0)
	waitFor(t, "subscribe", func() bool { return conn.subscribeCount() == 1 })

	cancel()

	select {
	case _, ok := <-responses:
		if ok {
			t.Error("received a response after context cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("response channel not closed after context cancellation")
	}

	waitFor(t, "connection release", func() bool { return conn.closeCount() == 1 })
}

func TestStream_ChannelParamsResolvedPerCall(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	dialer := &fakeDialer{}
	link := newTestLink(t, dialer.dial, func(cfg *Config) {
		cfg.ChannelParamsSupplier = func(ctx context.Context) (map[string]any, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			return map[string]any{"resolution": calls}, nil
		}
	})

	stream := link.Subscribe(context.Background(), testOperation())
	defer stream.Close()
	stream.Responses()

	conn := waitForConn(t, dialer, 0)
	waitFor(t, "subscribe", func() bool { return conn.subscribeCount() == 1 })
	conn.confirm()
	waitFor(t, "execute", func() bool { return conn.performCount() == 1 })

	conn.mu.Lock()
	subIdentifier := conn.subs[0]
	execIdentifier := conn.performs[0].identifier
	conn.mu.Unlock()

	// The supplier runs once for the subscribe and once for the execute;
	// a changed value shows up in the execute identifier.
	var subDesc, execDesc map[string]any
	json.Unmarshal([]byte(subIdentifier), &subDesc)
	json.Unmarshal([]byte(execIdentifier), &execDesc)

	if subDesc["resolution"] != float64(1) {
		t.Errorf("subscribe resolution = %v, want 1", subDesc["resolution"])
	}
	if execDesc["resolution"] != float64(2) {
		t.Errorf("execute resolution = %v, want 2", execDesc["resolution"])
	}
}

func TestStream_ErrorPayloadPassesThrough(t *testing.T) {
	dialer := &fakeDialer{}
	link := newTestLink(t, dialer.dial, nil)

	stream := link.Subscribe(context.Background(), testOperation())
	defer stream.Close()
	responses := stream.Responses()

	conn := waitForConn(t, dialer, 0)
	waitFor(t, "subscribe", func() bool { return conn.subscribeCount() == 1 })
	conn.confirm()

	conn.broadcast(`{"errors":[{"message":"boom"}]}`)

	select {
	case resp := <-responses:
		var errs []map[string]string
		if err := json.Unmarshal(resp.Errors, &errs); err != nil {
			t.Fatalf("unparseable errors: %v", err)
		}
		if len(errs) != 1 || errs[0]["message"] != "boom" {
			t.Errorf("errors = %v, want pass-through of server payload", errs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error payload")
	}
}

func TestStream_IndependentPerSubscribeState(t *testing.T) {
	dialer := &fakeDialer{}
	link := newTestLink(t, dialer.dial, nil)

	a := link.Subscribe(context.Background(), testOperation())
	b := link.Subscribe(context.Background(), testOperation())
	defer a.Close()
	defer b.Close()

	a.Responses()
	b.Responses()

	waitFor(t, "two connections", func() bool { return dialer.connCount() == 2 })

	if a.coord.channelID == b.coord.channelID {
		t.Error("streams share a channel id")
	}

	// Closing one stream leaves the other connected.
	a.Close()
	waitFor(t, "first released", func() bool {
		return dialer.conn(0).closeCount()+dialer.conn(1).closeCount() == 1
	})
}
