package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Manager owns the single feed connection: it opens it, sends subscriptions,
// rotates it on schedule, and reconnects with backoff on failure. Decoded
// messages are delivered in feed order on Messages().
type Manager interface {
	// Start opens the connection and begins streaming.
	Start(ctx context.Context) error

	// Stop gracefully shuts the connection down.
	Stop(ctx context.Context) error

	// Messages returns the single dispatch point for decoded feed messages.
	Messages() <-chan Message

	// RegisterTeardown adds a hook invoked synchronously on every close,
	// before any reconnect attempt. Hooks must be registered before Start.
	RegisterTeardown(hook func())

	// State returns the current connection lifecycle state.
	State() State
}

// newClientFn builds a Client; replaced in tests.
type newClientFn func(cfg ClientConfig, logger *slog.Logger) Client

// manager implements the Manager interface.
type manager struct {
	cfg       ManagerConfig
	logger    *slog.Logger
	newClient newClientFn

	out chan Message

	// Teardown hooks, registered before Start and drained synchronously on
	// every close.
	hooksMu sync.Mutex
	hooks   []func()

	// Reconnect attempt counter; reset to 0 on every successful open.
	attempt int

	state atomic.Int32

	// Version-token tracking per channel/id. Gaps are surfaced on the
	// decoded message and logged; they do not force a re-subscribe.
	lastVersion map[string]int64

	// The single physical connection handle. Open/close is serialized by the
	// run loop; only stored here so Stop can force-close it.
	clientMu sync.Mutex
	client   Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new Connection Manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &manager{
		cfg:         cfg,
		logger:      logger,
		newClient:   NewClient,
		out:         make(chan Message, cfg.MessageBuffer),
		lastVersion: make(map[string]int64),
	}
}

// Start opens the connection and begins the run loop.
func (m *manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("connection manager started",
		"url", m.cfg.URL,
		"subscriptions", len(m.cfg.Subscriptions),
	)

	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping connection manager")

	if m.cancel != nil {
		m.cancel()
	}

	// Unblock a read loop waiting on the socket.
	m.closeClient()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	m.logger.Info("connection manager stopped")
	return nil
}

// Messages returns the dispatch channel.
func (m *manager) Messages() <-chan Message {
	return m.out
}

// RegisterTeardown adds a close hook.
func (m *manager) RegisterTeardown(hook func()) {
	m.hooksMu.Lock()
	m.hooks = append(m.hooks, hook)
	m.hooksMu.Unlock()
}

// State returns the current lifecycle state.
func (m *manager) State() State {
	return State(m.state.Load())
}

// run is the connection lifecycle loop. Exactly one physical connection
// exists at a time: every iteration force-closes the previous handle before
// dialing a new one. The loop owns the out channel: it is closed here, after
// the last possible send, never from Stop.
func (m *manager) run() {
	defer func() {
		m.state.Store(int32(StateDisconnected))
		close(m.out)
		m.wg.Done()
	}()

	for {
		if m.ctx.Err() != nil {
			return
		}

		client, err := m.connect()
		if err != nil {
			m.logger.Warn("connect failed", "error", err)
			if !m.backoff() {
				return
			}
			continue
		}

		// Successful open resets the backoff schedule.
		m.attempt = 0

		rotate := time.NewTimer(m.cfg.RotateAfter)
		streamErr := m.stream(client, rotate.C)
		rotate.Stop()

		// Every close runs the teardown hooks synchronously before any
		// reconnect proceeds.
		m.closeClient()
		m.runTeardownHooks()

		switch {
		case m.ctx.Err() != nil:
			return
		case streamErr == errRotation:
			// Scheduled rotation, not an error path: reconnect immediately
			// without touching the attempt counter.
			m.logger.Info("rotating connection", "after", m.cfg.RotateAfter)
		default:
			m.logger.Warn("connection lost", "error", streamErr)
			if !m.backoff() {
				return
			}
		}
	}
}

// errRotation signals the scheduled 24h connection rotation.
var errRotation = fmt.Errorf("scheduled rotation")

// connect dials a fresh connection and sends one subscribe frame per
// configured channel.
func (m *manager) connect() (Client, error) {
	m.state.Store(int32(StateConnecting))

	// Force-close and drop any prior handle first.
	m.closeClient()

	client := m.newClient(ClientConfig{
		URL:          m.cfg.URL,
		PingInterval: m.cfg.PingInterval,
		PingTimeout:  3 * m.cfg.PingInterval,
		WriteTimeout: m.cfg.WriteTimeout,
		BufferSize:   m.cfg.BufferSize,
	}, m.logger)

	if err := client.Connect(m.ctx); err != nil {
		return nil, err
	}

	m.clientMu.Lock()
	m.client = client
	m.clientMu.Unlock()

	for _, sub := range m.cfg.Subscriptions {
		data, err := json.Marshal(subscribeFrame{
			Type:    "subscribe",
			Channel: sub.Channel,
			ID:      sub.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal subscribe: %w", err)
		}
		if err := client.Send(data); err != nil {
			client.Close()
			return nil, fmt.Errorf("send subscribe %s: %w", sub.Channel, err)
		}
		m.logger.Debug("subscribe sent", "channel", sub.Channel, "id", sub.ID)
	}

	m.state.Store(int32(StateSubscribed))
	return client, nil
}

// stream pumps decoded messages until the connection errors, the rotation
// timer fires, or the context is cancelled.
func (m *manager) stream(client Client, rotate <-chan time.Time) error {
	for {
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()

		case <-rotate:
			return errRotation

		case err := <-client.Errors():
			return err

		case raw, ok := <-client.Messages():
			if !ok {
				return ErrNotConnected
			}

			msg, ok := m.decode(raw)
			if !ok {
				continue
			}

			m.state.Store(int32(StateStreaming))

			select {
			case m.out <- msg:
			case <-m.ctx.Done():
				return m.ctx.Err()
			}
		}
	}
}

// decode parses a raw frame into a Message. Control frames ("connected") and
// malformed frames yield ok=false; malformed frames are logged and dropped,
// leaving downstream state unchanged.
func (m *manager) decode(raw TimestampedMessage) (Message, bool) {
	var f frame
	if err := json.Unmarshal(raw.Data, &f); err != nil {
		m.logger.Warn("failed to decode frame", "error", err)
		return Message{}, false
	}

	switch f.Type {
	case "connected":
		m.logger.Debug("feed acknowledged connection")
		return Message{}, false

	case "subscribed":
		return Message{
			Kind:       KindSnapshot,
			Channel:    f.Channel,
			ID:         f.ID,
			Contents:   f.Contents,
			ReceivedAt: raw.ReceivedAt,
		}, true

	case "channel_data":
		gap := m.checkVersion(f.Channel, f.ID, f.Version)
		return Message{
			Kind:       KindIncremental,
			Channel:    f.Channel,
			ID:         f.ID,
			Version:    f.Version,
			Contents:   f.Contents,
			ReceivedAt: raw.ReceivedAt,
			VersionGap: gap,
		}, true

	default:
		m.logger.Warn("unexpected frame type, dropping", "type", f.Type)
		return Message{}, false
	}
}

// checkVersion tracks the last-seen version token per channel/id and reports
// gaps. Non-numeric tokens are observed but not checked.
func (m *manager) checkVersion(channel, id, version string) bool {
	if version == "" {
		return false
	}
	v, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return false
	}

	key := channel + "/" + id
	last, exists := m.lastVersion[key]
	m.lastVersion[key] = v

	if !exists {
		return false
	}

	if v != last+1 {
		m.logger.Warn("version gap detected",
			"channel", channel,
			"id", id,
			"expected", last+1,
			"got", v,
		)
		return true
	}

	return false
}

// backoff waits 2^attempt seconds before the next connect. It returns false
// once the attempt cap is exceeded: the fatal condition is reported and no
// further retries happen until an operator restarts the process.
func (m *manager) backoff() bool {
	if m.attempt > m.cfg.MaxAttempts {
		m.logger.Error("reconnect attempts exhausted, giving up",
			"attempts", m.attempt,
			"error", ErrRetriesExhausted,
		)
		return false
	}

	m.state.Store(int32(StateReconnecting))

	delay := BackoffDelay(m.attempt)
	m.logger.Info("reconnecting",
		"attempt", m.attempt,
		"delay", delay,
	)
	m.attempt++

	select {
	case <-m.ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// BackoffDelay returns the reconnect delay for a given attempt number:
// 2^attempt seconds.
func BackoffDelay(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// runTeardownHooks drains the registered hooks synchronously.
func (m *manager) runTeardownHooks() {
	m.hooksMu.Lock()
	hooks := make([]func(), len(m.hooks))
	copy(hooks, m.hooks)
	m.hooksMu.Unlock()

	for _, hook := range hooks {
		hook()
	}
}

// closeClient force-closes the current handle, if any.
func (m *manager) closeClient() {
	m.clientMu.Lock()
	client := m.client
	m.client = nil
	m.clientMu.Unlock()

	if client != nil {
		client.Close()
	}
}
