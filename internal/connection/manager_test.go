package connection

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClient implements Client for manager tests without a real socket.
type fakeClient struct {
	connectErr error

	mu   sync.Mutex
	sent [][]byte

	messages chan TimestampedMessage
	errors   chan error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		messages: make(chan TimestampedMessage, 16),
		errors:   make(chan error, 1),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error { return f.connectErr }
func (f *fakeClient) Close() error                      { return nil }
func (f *fakeClient) IsConnected() bool                 { return true }

func (f *fakeClient) Send(data []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Messages() <-chan TimestampedMessage { return f.messages }
func (f *fakeClient) Errors() <-chan error                { return f.errors }

func (f *fakeClient) push(raw string) {
	f.messages <- TimestampedMessage{Data: []byte(raw), ReceivedAt: time.Now()}
}

func (f *fakeClient) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeFactory hands fake clients to the manager and records each one.
type fakeFactory struct {
	connectErr error

	mu      sync.Mutex
	clients []*fakeClient
}

func (ff *fakeFactory) new(cfg ClientConfig, logger *slog.Logger) Client {
	c := newFakeClient()
	c.connectErr = ff.connectErr
	ff.mu.Lock()
	ff.clients = append(ff.clients, c)
	ff.mu.Unlock()
	return c
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.clients)
}

func (ff *fakeFactory) client(i int) *fakeClient {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.clients[i]
}

func newTestManager(cfg ManagerConfig, ff *fakeFactory) *manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(cfg, logger).(*manager)
	m.newClient = ff.new
	return m
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManager_SubscribesAndStreams(t *testing.T) {
	ff := &fakeFactory{}
	cfg := DefaultManagerConfig()
	cfg.URL = "ws://test"
	cfg.Subscriptions = []Subscription{
		{Channel: ChannelMarkets},
		{Channel: ChannelOrderbook, ID: "BTC-USD"},
		{Channel: ChannelSubaccounts, ID: "dydx1test/0"},
	}
	m := newTestManager(cfg, ff)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, func() bool {
		return ff.count() == 1 && len(ff.client(0).sentFrames()) == 3
	}, "subscribe frames")

	if got := m.State(); got != StateSubscribed {
		t.Errorf("state = %v, want subscribed", got)
	}

	frames := ff.client(0).sentFrames()
	var sub subscribeFrame
	if err := json.Unmarshal(frames[1], &sub); err != nil {
		t.Fatalf("bad subscribe frame: %v", err)
	}
	if sub.Type != "subscribe" || sub.Channel != ChannelOrderbook || sub.ID != "BTC-USD" {
		t.Errorf("subscribe frame = %+v", sub)
	}

	// Control acknowledgements are consumed, not dispatched.
	ff.client(0).push(`{"type":"connected"}`)
	ff.client(0).push(`{"type":"subscribed","channel":"orderbook","id":"BTC-USD","contents":{"bids":[],"asks":[]}}`)

	select {
	case msg := <-m.Messages():
		if msg.Kind != KindSnapshot || msg.Channel != ChannelOrderbook || msg.ID != "BTC-USD" {
			t.Errorf("decoded = %+v, want orderbook snapshot", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decoded message")
	}

	ff.client(0).push(`{"type":"channel_data","channel":"orderbook","id":"BTC-USD","version":"7","contents":{}}`)
	select {
	case msg := <-m.Messages():
		if msg.Kind != KindIncremental || msg.Version != "7" {
			t.Errorf("decoded = %+v, want incremental v7", msg)
		}
		if msg.VersionGap {
			t.Error("first version token flagged as gap")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for incremental")
	}

	if got := m.State(); got != StateStreaming {
		t.Errorf("state = %v, want streaming", got)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := m.State(); got != StateDisconnected {
		t.Errorf("state after Stop = %v, want disconnected", got)
	}
}

func TestManager_RotationRunsTeardownAndResubscribes(t *testing.T) {
	ff := &fakeFactory{}
	cfg := DefaultManagerConfig()
	cfg.URL = "ws://test"
	cfg.RotateAfter = 30 * time.Millisecond
	cfg.Subscriptions = []Subscription{{Channel: ChannelMarkets}}
	m := newTestManager(cfg, ff)

	var hookCalls atomic.Int32
	m.RegisterTeardown(func() { hookCalls.Add(1) })

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Rotation closes the handle, runs hooks, and reopens without backoff.
	waitFor(t, func() bool { return ff.count() >= 2 }, "rotation reconnect")
	waitFor(t, func() bool { return hookCalls.Load() >= 1 }, "teardown hook")

	waitFor(t, func() bool { return len(ff.client(1).sentFrames()) == 1 }, "re-subscribe")

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if int(hookCalls.Load()) < ff.count()-1 {
		t.Errorf("hooks = %d for %d opens", hookCalls.Load(), ff.count())
	}
}

func TestManager_RetriesExhausted(t *testing.T) {
	ff := &fakeFactory{connectErr: ErrNotConnected}
	cfg := DefaultManagerConfig()
	cfg.URL = "ws://test"
	cfg.MaxAttempts = 0
	m := newTestManager(cfg, ff)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Attempt 0 waits 1s, attempt 1 exceeds the cap and gives up.
	deadline := time.Now().Add(4 * time.Second)
	for m.State() != StateDisconnected || ff.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v after %d connects, want disconnected after 2",
				m.State(), ff.count())
		}
		time.Sleep(20 * time.Millisecond)
	}

	// Give the run loop a moment to prove it stays down.
	time.Sleep(50 * time.Millisecond)
	if got := ff.count(); got != 2 {
		t.Errorf("connect attempts = %d, want exactly 2", got)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestManager_StopTimeoutDoesNotCloseMessages(t *testing.T) {
	ff := &fakeFactory{}
	cfg := DefaultManagerConfig()
	cfg.URL = "ws://test"
	m := newTestManager(cfg, ff)

	var inHook atomic.Bool
	release := make(chan struct{})
	m.RegisterTeardown(func() {
		inHook.Store(true)
		<-release
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool { return ff.count() == 1 }, "first connect")

	// Fail the connection so the run loop parks inside the teardown hook.
	ff.client(0).errors <- ErrStaleConnection
	waitFor(t, func() bool { return inHook.Load() }, "teardown in progress")

	// Stop with an expired deadline returns while the run loop is still
	// live. The out channel must stay open until the loop itself exits.
	expired, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Stop(expired); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case _, ok := <-m.Messages():
		if !ok {
			t.Fatal("Messages closed while the run loop was still live")
		}
		t.Fatal("unexpected message during shutdown")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case _, ok := <-m.Messages():
		if ok {
			t.Fatal("unexpected message after shutdown")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Messages never closed after the run loop exited")
	}
	if got := m.State(); got != StateDisconnected {
		t.Errorf("state = %v, want disconnected", got)
	}
}

func TestBackoffDelay(t *testing.T) {
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}
	for attempt, d := range want {
		if got := BackoffDelay(attempt); got != d {
			t.Errorf("BackoffDelay(%d) = %v, want %v", attempt, got, d)
		}
	}
}

func TestManager_DecodeDropsMalformedFrames(t *testing.T) {
	m := newTestManager(DefaultManagerConfig(), &fakeFactory{})

	cases := []string{
		`not json`,
		`{"type":"connected"}`,
		`{"type":"pong"}`,
	}
	for _, raw := range cases {
		if _, ok := m.decode(TimestampedMessage{Data: []byte(raw), ReceivedAt: time.Now()}); ok {
			t.Errorf("decode(%q) dispatched, want dropped", raw)
		}
	}
}

func TestManager_VersionGapDetection(t *testing.T) {
	m := newTestManager(DefaultManagerConfig(), &fakeFactory{})

	decode := func(channel, id, version string) Message {
		t.Helper()
		raw := TimestampedMessage{
			Data: []byte(`{"type":"channel_data","channel":"` + channel +
				`","id":"` + id + `","version":"` + version + `","contents":{}}`),
			ReceivedAt: time.Now(),
		}
		msg, ok := m.decode(raw)
		if !ok {
			t.Fatalf("decode dropped channel_data %s/%s v%s", channel, id, version)
		}
		return msg
	}

	if decode(ChannelOrderbook, "BTC-USD", "1").VersionGap {
		t.Error("first token flagged as gap")
	}
	if decode(ChannelOrderbook, "BTC-USD", "2").VersionGap {
		t.Error("consecutive token flagged as gap")
	}
	if !decode(ChannelOrderbook, "BTC-USD", "4").VersionGap {
		t.Error("skipped token not flagged")
	}

	// Tracking is per channel/id: another instrument starts fresh.
	if decode(ChannelOrderbook, "ETH-USD", "9").VersionGap {
		t.Error("independent id flagged as gap")
	}

	// Non-numeric tokens are observed but never checked.
	if decode(ChannelSubaccounts, "addr/0", "abc").VersionGap {
		t.Error("non-numeric token flagged as gap")
	}
}
