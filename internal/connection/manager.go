package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/tutorlink-realtime/internal/dispatch"
	"github.com/rickgao/tutorlink-realtime/internal/frame"
	"github.com/rickgao/tutorlink-realtime/internal/reconnect"
)

// Manager supervises the realtime connection for one user identity.
type Manager interface {
	// Connect opens a connection for userID and resets the retry budget.
	// An empty userID is a no-op returning ErrNoIdentity. The same identity
	// while connecting or ready is a no-op. A different identity tears the
	// current connection down first.
	Connect(ctx context.Context, userID string) error

	// Disconnect closes the connection and cancels any pending reconnect.
	// Idempotent.
	Disconnect()

	// Emit sends an event. Returns ErrNotReady unless the session is Ready.
	Emit(name string, payload any) error

	// State returns the current state.
	State() State

	// UserID returns the identity the manager is bound to, or "".
	UserID() string

	// OnStateChange registers fn for every transition and returns a
	// function that removes it.
	OnStateChange(fn StateListener) (remove func())

	// Stats returns current connection statistics.
	Stats() ManagerStats
}

// StateListener is called after a transition, on the goroutine that caused
// it. Listeners must not block.
type StateListener func(from, to State)

// EventSink receives decoded server events.
type EventSink interface {
	DispatchEvent(dispatch.Event)
}

// Observer is notified of connection activity. Used for metrics.
type Observer interface {
	StateChanged(state string)
	FrameReceived(kind string)
	FrameSent(kind string)
	DecodeError()
	ReconnectAttempt()
}

type nopObserver struct{}

func (nopObserver) StateChanged(string)  {}
func (nopObserver) FrameReceived(string) {}
func (nopObserver) FrameSent(string)     {}
func (nopObserver) DecodeError()         {}
func (nopObserver) ReconnectAttempt()    {}

// ClientFactory builds the transport for one connection attempt.
type ClientFactory func(ClientConfig, *slog.Logger) Client

// Option configures a Manager.
type Option func(*manager)

// WithClientFactory replaces the WebSocket client constructor.
func WithClientFactory(f ClientFactory) Option {
	return func(m *manager) {
		m.newClient = f
	}
}

// WithObserver attaches a metrics observer. If it also implements
// reconnect.Observer it is attached to the default policy.
func WithObserver(o Observer) Option {
	return func(m *manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithPolicy replaces the reconnect policy.
func WithPolicy(p *reconnect.Policy) Option {
	return func(m *manager) {
		m.policy = p
	}
}

type listenerEntry struct {
	fn StateListener
}

// manager implements the Manager interface.
type manager struct {
	cfg       ManagerConfig
	sink      EventSink
	logger    *slog.Logger
	observer  Observer
	policy    *reconnect.Policy
	newClient ClientFactory

	mu        sync.Mutex
	state     State
	userID    string
	socketURL string
	client    Client
	cancel    context.CancelFunc
	gen       uint64 // Bumped on every dial and teardown; fences stale loops
	connID    string
	open      frame.OpenPayload

	listenerMu sync.RWMutex
	listeners  []*listenerEntry

	framesReceived atomic.Int64
	decodeErrors   atomic.Int64
}

// NewManager creates a new Connection Manager delivering events to sink.
func NewManager(cfg ManagerConfig, sink EventSink, logger *slog.Logger, opts ...Option) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultManagerConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	m := &manager{
		cfg:       cfg,
		sink:      sink,
		logger:    logger,
		observer:  nopObserver{},
		newClient: NewClient,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.policy == nil {
		var popts []reconnect.Option
		if ro, ok := m.observer.(reconnect.Observer); ok {
			popts = append(popts, reconnect.WithObserver(ro))
		}
		m.policy = reconnect.New(cfg.Reconnect, logger.With("component", "reconnect"), popts...)
	}

	return m
}

// Connect opens a connection for userID.
func (m *manager) Connect(ctx context.Context, userID string) error {
	if userID == "" {
		m.logger.Debug("connect skipped: no identity")
		return ErrNoIdentity
	}

	socketURL, err := BuildURL(m.cfg.URL, m.cfg.Path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.userID == userID && m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	if m.userID != "" && m.userID != userID {
		m.logger.Info("identity changed, tearing down connection",
			"from_user", m.userID,
			"to_user", userID,
		)
	}
	from, old := m.teardownLocked()
	m.userID = userID
	m.socketURL = socketURL
	m.policy.Reset()
	m.mu.Unlock()

	m.closeClient(old, from == StateReady)
	m.notify(from, StateDisconnected)

	return m.dial(ctx, userID)
}

// Disconnect closes the connection and cancels any pending reconnect.
func (m *manager) Disconnect() {
	m.mu.Lock()
	from, old := m.teardownLocked()
	userID := m.userID
	m.userID = ""
	m.mu.Unlock()

	m.policy.Reset()
	m.closeClient(old, from == StateReady)

	if from != StateDisconnected {
		m.logger.Info("disconnected", "user_id", userID)
	}
	m.notify(from, StateDisconnected)
}

// Emit sends an event frame on the ready session.
func (m *manager) Emit(name string, payload any) error {
	m.mu.Lock()
	state := m.state
	client := m.client
	m.mu.Unlock()

	if state != StateReady || client == nil {
		return fmt.Errorf("emit %s: %w (state %s)", name, ErrNotReady, state)
	}

	f, err := frame.NewEvent(name, payload)
	if err != nil {
		return fmt.Errorf("emit %s: %w", name, err)
	}
	if err := m.send(client, f); err != nil {
		return fmt.Errorf("emit %s: %w", name, err)
	}
	return nil
}

// State returns the current state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// UserID returns the bound identity.
func (m *manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// OnStateChange registers a transition listener.
func (m *manager) OnStateChange(fn StateListener) func() {
	if fn == nil {
		return func() {}
	}

	e := &listenerEntry{fn: fn}
	m.listenerMu.Lock()
	m.listeners = append(m.listeners, e)
	m.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenerMu.Lock()
			defer m.listenerMu.Unlock()
			for i, l := range m.listeners {
				if l == e {
					m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Stats returns current connection statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	stats := ManagerStats{
		State:  m.state,
		UserID: m.userID,
		ConnID: m.connID,
		SID:    m.open.SID,
	}
	m.mu.Unlock()

	stats.Attempt = m.policy.Attempt()
	stats.ReconnectPending = m.policy.Pending()
	stats.FramesReceived = m.framesReceived.Load()
	stats.DecodeErrors = m.decodeErrors.Load()
	return stats
}

// dial starts one connection attempt for userID.
func (m *manager) dial(ctx context.Context, userID string) error {
	m.mu.Lock()
	if m.userID != userID {
		m.mu.Unlock()
		return nil
	}
	m.gen++
	gen := m.gen
	m.connID = uuid.NewString()
	m.open = frame.OpenPayload{}
	logger := m.logger.With("user_id", userID, "conn_id", m.connID)

	client := m.newClient(ClientConfig{
		URL:              m.socketURL,
		Token:            m.cfg.Token,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.BufferSize,
	}, logger)
	m.client = client
	from := m.state
	m.state = StateConnecting
	m.mu.Unlock()

	m.notify(from, StateConnecting)
	logger.Info("connecting")

	if err := client.Connect(ctx); err != nil {
		m.handleLoss(gen, fmt.Errorf("dial: %w", err))
		return fmt.Errorf("dial socket: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if gen != m.gen {
		// Torn down while dialing.
		m.mu.Unlock()
		cancel()
		client.Close()
		return nil
	}
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(runCtx, gen, userID, client, logger)
	return nil
}

// retry is the reconnect policy callback.
func (m *manager) retry(userID string) {
	m.mu.Lock()
	if m.userID != userID || m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.observer.ReconnectAttempt()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	defer cancel()
	if err := m.dial(ctx, userID); err != nil {
		m.logger.Debug("reconnect attempt failed", "user_id", userID, "error", err)
	}
}

// run processes frames for one connection attempt until it ends.
func (m *manager) run(ctx context.Context, gen uint64, userID string, client Client, logger *slog.Logger) {
	watchdog := time.NewTimer(m.cfg.HandshakeTimeout)
	defer watchdog.Stop()

	// Until the open packet arrives the watchdog enforces the handshake timeout.
	expired := ErrHandshakeTimeout

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-client.Errors():
			// Frames read before the failure are still processed in order.
			for drained := false; !drained; {
				select {
				case msg := <-client.Messages():
					if _, ferr := m.handleFrame(gen, userID, client, msg, logger); ferr != nil {
						m.handleLoss(gen, ferr)
						return
					}
				default:
					drained = true
				}
			}
			m.handleLoss(gen, fmt.Errorf("read: %w", err))
			return

		case <-watchdog.C:
			logger.Warn("heartbeat expired", "error", expired)
			m.handleLoss(gen, expired)
			return

		case msg := <-client.Messages():
			window, err := m.handleFrame(gen, userID, client, msg, logger)
			if err != nil {
				m.handleLoss(gen, err)
				return
			}
			if window > 0 {
				resetTimer(watchdog, window)
				expired = ErrStaleConnection
			}
		}
	}
}

// handleFrame applies one inbound frame. It returns a positive duration when
// the heartbeat watchdog should be re-armed, and an error when the frame
// ends the connection. Undecodable frames are logged and dropped.
func (m *manager) handleFrame(gen uint64, userID string, client Client, msg TimestampedMessage, logger *slog.Logger) (time.Duration, error) {
	m.framesReceived.Add(1)

	f, err := frame.Decode(string(msg.Data))
	if err != nil {
		m.decodeErrors.Add(1)
		m.observer.DecodeError()
		logger.Warn("dropping malformed frame", "error", err, "bytes", len(msg.Data))
		return 0, nil
	}
	m.observer.FrameReceived(frameLabel(f))

	switch {
	case f.Kind == frame.KindEvent:
		e := dispatch.NewEvent(f.Event, f.Payload())
		e.ReceivedAt = msg.ReceivedAt
		if m.sink != nil {
			m.sink.DispatchEvent(e)
		}
		return 0, nil

	case f.IsControl(frame.PacketOpen):
		open, err := frame.ParseOpen(f)
		if err != nil {
			return 0, err
		}
		if !m.transition(gen, StateConnecting, StateTransportOpen, func() { m.open = open }) {
			return 0, nil
		}
		logger.Debug("transport open",
			"sid", open.SID,
			"ping_interval_ms", open.PingInterval,
			"ping_timeout_ms", open.PingTimeout,
		)
		if err := m.send(client, frame.Connect()); err != nil {
			return 0, fmt.Errorf("send session connect: %w", err)
		}
		return m.heartbeatWindow(open), nil

	case f.IsControl(frame.PacketPing):
		if err := m.send(client, frame.Pong(f.Data)); err != nil {
			return 0, fmt.Errorf("send pong: %w", err)
		}
		m.mu.Lock()
		open := m.open
		m.mu.Unlock()
		return m.heartbeatWindow(open), nil

	case f.IsControl(frame.PacketClose):
		return 0, ErrServerClosed

	case f.IsMessage(frame.MessageConnect):
		if m.State() != StateTransportOpen {
			logger.Debug("ignoring session ack outside handshake")
			return 0, nil
		}

		// Register goes out before Ready is published so no Emit can
		// precede it on the wire.
		register, err := frame.NewEvent(dispatch.EventRegister, userID)
		if err != nil {
			return 0, err
		}
		if err := m.send(client, register); err != nil {
			return 0, fmt.Errorf("send register: %w", err)
		}

		if !m.transition(gen, StateTransportOpen, StateReady, nil) {
			return 0, nil
		}
		m.policy.Reset()
		logger.Info("session ready")
		return 0, nil

	case f.IsMessage(frame.MessageConnectError):
		return 0, fmt.Errorf("%w: %s", ErrConnectRejected, f.Data)

	case f.IsMessage(frame.MessageDisconnect):
		return 0, ErrServerDisconnect

	default:
		logger.Debug("ignoring control frame", "packet", f.Packet, "message", f.Message)
		return 0, nil
	}
}

// handleLoss ends attempt gen and hands off to the reconnect policy before
// publishing the Disconnected transition. Stale generations are ignored.
func (m *manager) handleLoss(gen uint64, reason error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	from, client := m.teardownLocked()
	userID := m.userID

	// Disconnected is never observable without a pending retry unless the
	// budget is spent.
	var err error
	if userID != "" {
		err = m.policy.OnDisconnect(reason, func() { m.retry(userID) })
	}
	m.mu.Unlock()

	m.notify(from, StateDisconnected)
	m.closeClient(client, false)

	m.logger.Warn("connection lost",
		"user_id", userID,
		"from", from,
		"error", reason,
	)
	if errors.Is(err, reconnect.ErrExhausted) {
		m.logger.Warn("realtime unavailable until next connect", "user_id", userID)
	}
}

// teardownLocked invalidates the current attempt. Caller holds m.mu and
// closes the returned client after unlocking.
func (m *manager) teardownLocked() (State, Client) {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	client := m.client
	m.client = nil
	from := m.state
	m.state = StateDisconnected
	m.open = frame.OpenPayload{}
	return from, client
}

func (m *manager) closeClient(client Client, sayGoodbye bool) {
	if client == nil {
		return
	}
	if sayGoodbye {
		if err := m.send(client, frame.Disconnect()); err != nil {
			m.logger.Debug("failed to send session disconnect", "error", err)
		}
	}
	if err := client.Close(); err != nil {
		m.logger.Debug("close transport", "error", err)
	}
}

// transition moves from -> to if gen is current and the state matches.
func (m *manager) transition(gen uint64, from, to State, apply func()) bool {
	m.mu.Lock()
	if gen != m.gen || m.state != from {
		m.mu.Unlock()
		return false
	}
	m.state = to
	if apply != nil {
		apply()
	}
	m.mu.Unlock()

	m.notify(from, to)
	return true
}

func (m *manager) notify(from, to State) {
	if from == to {
		return
	}
	m.observer.StateChanged(to.String())

	m.listenerMu.RLock()
	snapshot := make([]*listenerEntry, len(m.listeners))
	copy(snapshot, m.listeners)
	m.listenerMu.RUnlock()

	for _, l := range snapshot {
		m.callListener(l.fn, from, to)
	}
}

func (m *manager) callListener(fn StateListener, from, to State) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("state listener panicked", "from", from, "to", to, "panic", r)
		}
	}()
	fn(from, to)
}

func (m *manager) send(client Client, f frame.Frame) error {
	s, err := frame.Encode(f)
	if err != nil {
		return err
	}
	if err := client.Send([]byte(s)); err != nil {
		return err
	}
	m.observer.FrameSent(frameLabel(f))
	return nil
}

func (m *manager) heartbeatWindow(open frame.OpenPayload) time.Duration {
	if w := open.HeartbeatWindow(); w > 0 {
		return w
	}
	return m.cfg.PingTimeout
}

// frameLabel names a frame for metrics.
func frameLabel(f frame.Frame) string {
	if f.Kind == frame.KindEvent {
		return "event"
	}
	if f.Packet == frame.PacketMessage {
		return f.Message.String()
	}
	return f.Packet.String()
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
