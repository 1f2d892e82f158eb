package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/tutorlink-realtime/internal/notification"
)

// Poll targets, used in logs and metrics.
const (
	TargetNotifications = "notifications"
	TargetUnreadCount   = "unread_count"
)

// ErrAlreadyStarted is returned by Start on a running poller.
var ErrAlreadyStarted = errors.New("poller: already started")

// Source is the REST collaborator the poller reads from.
type Source interface {
	GetNotifications(ctx context.Context) ([]notification.Notification, error)
	GetUnreadCount(ctx context.Context) (int, error)
}

// NotificationSink receives fetched notifications.
type NotificationSink interface {
	UpsertAll(ns []notification.Notification) int
}

// CountSink receives the fetched unread count.
type CountSink interface {
	Set(n int)
}

// Observer is notified after every poll. Used for metrics.
type Observer interface {
	PollCompleted(target string, d time.Duration, err error)
}

// Config holds poller configuration.
type Config struct {
	NotificationInterval time.Duration // Notification list poll (default: 10s)
	UnreadInterval       time.Duration // Unread count poll (default: 30s)
	Timeout              time.Duration // Per-request timeout (default: 10s)

	// NotificationsAlwaysOn keeps the notification poll running while Ready.
	NotificationsAlwaysOn bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		NotificationInterval: 10 * time.Second,
		UnreadInterval:       30 * time.Second,
		Timeout:              10 * time.Second,
	}
}

type target struct {
	name     string
	interval time.Duration
	alwaysOn bool
	poll     func(ctx context.Context) error
	nudge    chan struct{}
}

// Poller runs the two fallback polls for one user session.
type Poller struct {
	cfg      Config
	source   Source
	store    NotificationSink
	counter  CountSink
	observer Observer
	logger   *slog.Logger

	targets []*target
	ready   atomic.Bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Poller.
type Option func(*Poller)

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(p *Poller) {
		p.observer = o
	}
}

// New creates a Poller writing into store and counter. Either sink may be
// nil, which disables that poll.
func New(cfg Config, source Source, store NotificationSink, counter CountSink, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.NotificationInterval <= 0 {
		cfg.NotificationInterval = def.NotificationInterval
	}
	if cfg.UnreadInterval <= 0 {
		cfg.UnreadInterval = def.UnreadInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	p := &Poller{
		cfg:     cfg,
		source:  source,
		store:   store,
		counter: counter,
		logger:  logger.With("component", "poller"),
	}
	for _, opt := range opts {
		opt(p)
	}

	if store != nil {
		p.targets = append(p.targets, &target{
			name:     TargetNotifications,
			interval: cfg.NotificationInterval,
			alwaysOn: cfg.NotificationsAlwaysOn,
			poll:     p.pollNotifications,
			nudge:    make(chan struct{}, 1),
		})
	}
	if counter != nil {
		p.targets = append(p.targets, &target{
			name:     TargetUnreadCount,
			interval: cfg.UnreadInterval,
			poll:     p.pollUnreadCount,
			nudge:    make(chan struct{}, 1),
		})
	}
	return p
}

// Start begins the polling loops. Each loop polls once immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for _, t := range p.targets {
		p.wg.Add(1)
		go p.run(ctx, t)
	}

	p.logger.Info("fallback poller started",
		"notification_interval", p.cfg.NotificationInterval,
		"unread_interval", p.cfg.UnreadInterval,
		"notifications_always_on", p.cfg.NotificationsAlwaysOn,
	)
	return nil
}

// Stop cancels the loops and waits for in-flight polls to finish. The poller
// may be started again afterwards.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.started = false
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("fallback poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetReady records whether the realtime connection is Ready. Losing Ready
// triggers an immediate poll.
func (p *Poller) SetReady(ready bool) {
	was := p.ready.Swap(ready)
	if was && !ready {
		p.logger.Debug("realtime connection lost, resuming polls")
		p.Nudge()
	}
}

// Ready reports the last value passed to SetReady.
func (p *Poller) Ready() bool {
	return p.ready.Load()
}

// Nudge asks every loop to poll now instead of waiting for its next tick.
// Nudges coalesce while a poll is pending.
func (p *Poller) Nudge() {
	for _, t := range p.targets {
		select {
		case t.nudge <- struct{}{}:
		default:
		}
	}
}

// run is the loop for one target.
func (p *Poller) run(ctx context.Context, t *target) {
	defer p.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	p.tick(ctx, t)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, t)
		case <-t.nudge:
			p.tick(ctx, t)
		}
	}
}

// tick runs one poll unless the target is suspended.
func (p *Poller) tick(ctx context.Context, t *target) {
	if !t.alwaysOn && p.ready.Load() {
		p.logger.Debug("poll suspended while ready", "target", t.name)
		return
	}

	pctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := t.poll(pctx)
	if p.observer != nil {
		p.observer.PollCompleted(t.name, time.Since(start), err)
	}
	if err != nil && ctx.Err() == nil {
		p.logger.Warn("poll failed", "target", t.name, "error", err)
	}
}

func (p *Poller) pollNotifications(ctx context.Context) error {
	ns, err := p.source.GetNotifications(ctx)
	if err != nil {
		return err
	}
	added := p.store.UpsertAll(ns)
	p.logger.Debug("notifications polled", "fetched", len(ns), "new", added)
	return nil
}

func (p *Poller) pollUnreadCount(ctx context.Context) error {
	n, err := p.source.GetUnreadCount(ctx)
	if err != nil {
		return err
	}
	p.counter.Set(n)
	p.logger.Debug("unread count polled", "count", n)
	return nil
}
