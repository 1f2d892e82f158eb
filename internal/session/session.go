package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/tutorlink-realtime/internal/connection"
	"github.com/rickgao/tutorlink-realtime/internal/dispatch"
	"github.com/rickgao/tutorlink-realtime/internal/metrics"
	"github.com/rickgao/tutorlink-realtime/internal/notification"
	"github.com/rickgao/tutorlink-realtime/internal/poller"
)

// Errors
var (
	ErrNoUserID     = errors.New("session: user id is required")
	ErrEmptyMessage = errors.New("session: message content is empty")
	ErrNoReceiver   = errors.New("session: receiver id is required")
)

// REST is the collaborator used for polling and notification actions.
type REST interface {
	poller.Source
	notification.Remote
}

// Config configures a Session.
type Config struct {
	UserID     string
	Connection connection.ManagerConfig
	Poller     poller.Config
}

// Option configures a Session.
type Option func(*options)

type options struct {
	metrics     *metrics.Metrics
	factory     connection.ClientFactory
	subscribers []dispatch.Subscriber
}

// WithMetrics reports every component to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClientFactory replaces the WebSocket client constructor.
func WithClientFactory(f connection.ClientFactory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithSubscribers adds dispatcher subscribers alongside the built-in ones.
func WithSubscribers(subs ...dispatch.Subscriber) Option {
	return func(o *options) {
		o.subscribers = append(o.subscribers, subs...)
	}
}

// Stats is a point-in-time view of a session.
type Stats struct {
	UserID        string
	Connection    connection.ManagerStats
	Dispatch      dispatch.Stats
	Notifications int
	Unread        int
	UnreadNotifs  int
}

// Session is the realtime state of one user.
type Session struct {
	userID string
	logger *slog.Logger

	manager    connection.Manager
	dispatcher *dispatch.Dispatcher
	poller     *poller.Poller
	store      *notification.Store
	unread     *notification.UnreadCounter

	mu      sync.Mutex
	cleanup []func()
	started bool
	stopped bool
}

// New wires a session for cfg.UserID. Nothing runs until Start.
func New(cfg Config, rest REST, logger *slog.Logger, opts ...Option) (*Session, error) {
	if cfg.UserID == "" {
		return nil, ErrNoUserID
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	logger = logger.With("user_id", cfg.UserID)
	s := &Session{
		userID: cfg.UserID,
		logger: logger,
	}

	var dobs dispatch.Observer
	var pobs []poller.Option
	var mopts []connection.Option
	if o.metrics != nil {
		dobs = o.metrics
		pobs = append(pobs, poller.WithObserver(o.metrics))
		mopts = append(mopts, connection.WithObserver(o.metrics))
	}
	if o.factory != nil {
		mopts = append(mopts, connection.WithClientFactory(o.factory))
	}

	s.dispatcher = dispatch.New(logger.With("component", "dispatch"), dobs)
	s.store = notification.NewStore(rest, logger.With("component", "notifications"))
	s.unread = notification.NewUnreadCounter(cfg.UserID, logger.With("component", "unread"))
	s.poller = poller.New(cfg.Poller, rest, s.store, s.unread, logger, pobs...)
	s.manager = connection.NewManager(cfg.Connection, s.dispatcher, logger.With("component", "connection"), mopts...)

	s.cleanup = append(s.cleanup,
		s.dispatcher.Subscribe(s.store),
		s.dispatcher.Subscribe(s.unread),
	)
	for _, sub := range o.subscribers {
		s.cleanup = append(s.cleanup, s.dispatcher.Subscribe(sub))
	}
	s.cleanup = append(s.cleanup, s.manager.OnStateChange(s.onStateChange))

	return s, nil
}

// onStateChange gates the poller on readiness. Losing Ready nudges it.
func (s *Session) onStateChange(from, to connection.State) {
	s.poller.SetReady(to == connection.StateReady)
	if from == connection.StateReady && to != connection.StateReady {
		s.logger.Info("realtime connection lost, polling resumes")
	}
}

// Start begins polling and connects the socket. A failed first dial is
// logged and retried in the background; only configuration errors are
// returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if err := s.poller.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	if err := s.manager.Connect(ctx, s.userID); err != nil {
		if errors.Is(err, connection.ErrInvalidURL) || errors.Is(err, connection.ErrNoIdentity) {
			_ = s.poller.Stop(ctx)
			return fmt.Errorf("connect: %w", err)
		}
		s.logger.Warn("initial connect failed, retrying in background", "error", err)
	}

	s.logger.Info("session started")
	return nil
}

// Stop disconnects, stops polling and detaches subscribers. Idempotent.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cleanup := s.cleanup
	s.cleanup = nil
	s.mu.Unlock()

	s.manager.Disconnect()
	for _, fn := range cleanup {
		fn()
	}

	if err := s.poller.Stop(ctx); err != nil {
		return fmt.Errorf("stop poller: %w", err)
	}

	s.logger.Info("session stopped")
	return nil
}

// Reconnect starts a fresh connection with a full retry budget unless one
// is already connecting, ready, or waiting on backoff.
func (s *Session) Reconnect(ctx context.Context) error {
	stats := s.manager.Stats()
	if stats.State != connection.StateDisconnected || stats.ReconnectPending {
		return nil
	}
	s.logger.Info("reconnecting", "previous_attempts", stats.Attempt)
	s.poller.Nudge()
	return s.manager.Connect(ctx, s.userID)
}

// SendMessage emits a chat message. SenderID defaults to the session user
// and MessageType to "text".
func (s *Session) SendMessage(msg dispatch.SendMessage) error {
	if msg.Content == "" {
		return ErrEmptyMessage
	}
	if msg.ReceiverID == "" {
		return ErrNoReceiver
	}
	if msg.SenderID == "" {
		msg.SenderID = s.userID
	}
	if msg.MessageType == "" {
		msg.MessageType = "text"
	}
	return s.manager.Emit(dispatch.EventSendMessage, msg)
}

// MarkMessageRead acknowledges messageID and lowers the unread count.
func (s *Session) MarkMessageRead(messageID string) error {
	err := s.manager.Emit(dispatch.EventMarkRead, dispatch.MarkRead{
		MessageID: messageID,
		UserID:    s.userID,
	})
	if err != nil {
		return err
	}
	s.unread.Decrement(1)
	return nil
}

// Typing tells receiverID the user is typing.
func (s *Session) Typing(receiverID string) error {
	return s.emitTyping(dispatch.EventTyping, receiverID)
}

// StopTyping tells receiverID the user stopped typing.
func (s *Session) StopTyping(receiverID string) error {
	return s.emitTyping(dispatch.EventStopTyping, receiverID)
}

func (s *Session) emitTyping(name, receiverID string) error {
	if receiverID == "" {
		return ErrNoReceiver
	}
	return s.manager.Emit(name, dispatch.Typing{ReceiverID: receiverID, SenderID: s.userID})
}

// Subscribe adds a dispatcher subscriber for the life of the session.
func (s *Session) Subscribe(sub dispatch.Subscriber) (unsubscribe func()) {
	return s.dispatcher.Subscribe(sub)
}

// UserID returns the session identity.
func (s *Session) UserID() string { return s.userID }

// State returns the connection state.
func (s *Session) State() connection.State { return s.manager.State() }

// Notifications returns the notification store.
func (s *Session) Notifications() *notification.Store { return s.store }

// Unread returns the unread message counter.
func (s *Session) Unread() *notification.UnreadCounter { return s.unread }

// Stats returns a snapshot of the session.
func (s *Session) Stats() Stats {
	return Stats{
		UserID:        s.userID,
		Connection:    s.manager.Stats(),
		Dispatch:      s.dispatcher.Stats(),
		Notifications: s.store.Len(),
		Unread:        s.unread.Count(),
		UnreadNotifs:  s.store.UnreadCount(),
	}
}
