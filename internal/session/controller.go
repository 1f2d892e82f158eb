package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Factory builds a session for userID.
type Factory func(userID string) (*Session, error)

// Controller holds the active session and swaps it on identity changes.
type Controller struct {
	factory Factory
	logger  *slog.Logger

	mu      sync.Mutex
	current *Session
}

// NewController creates a controller with no active session.
func NewController(factory Factory, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		factory: factory,
		logger:  logger.With("component", "session"),
	}
}

// Login makes userID the active identity. The same identity is a no-op.
// A different identity fully stops the old session before the new one
// starts.
func (c *Controller) Login(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, ErrNoUserID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.current.UserID() == userID {
		return c.current, nil
	}

	if c.current != nil {
		c.logger.Info("switching user", "from_user", c.current.UserID(), "to_user", userID)
		if err := c.current.Stop(ctx); err != nil {
			c.logger.Warn("stop previous session", "error", err)
		}
		c.current = nil
	}

	s, err := c.factory(userID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := s.Start(ctx); err != nil {
		_ = s.Stop(ctx)
		return nil, fmt.Errorf("start session: %w", err)
	}
	c.current = s
	return s, nil
}

// Logout stops the active session, if any.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	s := c.current
	c.current = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Stop(ctx)
}

// Foreground is called when the app returns to the foreground. It
// reconnects a session whose retry budget ran out.
func (c *Controller) Foreground(ctx context.Context) error {
	s := c.Current()
	if s == nil {
		return nil
	}
	return s.Reconnect(ctx)
}

// Current returns the active session or nil.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
