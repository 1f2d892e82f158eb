package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/rickgao/tutorlink-realtime/internal/dispatch"
)

// Remote is the server side of notification actions.
type Remote interface {
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
	ClearNotifications(ctx context.Context) error
}

// Store is the in-memory notification list for one user.
//
// Poll results and push events are applied as upserts keyed by id with
// last-write-wins on fields, so the same notification seen twice yields one
// entry. Entries leave the store only through ClearAll.
type Store struct {
	remote Remote
	logger *slog.Logger

	mu    sync.RWMutex
	items map[string]Notification
}

// NewStore creates an empty store. remote may be nil for read-only use.
func NewStore(remote Remote, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		remote: remote,
		logger: logger,
		items:  make(map[string]Notification),
	}
}

// Upsert inserts or replaces n by id. Returns false if n has no id.
func (s *Store) Upsert(n Notification) bool {
	if n.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[n.ID] = n
	return true
}

// UpsertAll applies Upsert to each notification and returns how many were
// new to the store.
func (s *Store) UpsertAll(ns []Notification) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, n := range ns {
		if n.ID == "" {
			continue
		}
		if _, ok := s.items[n.ID]; !ok {
			added++
		}
		s.items[n.ID] = n
	}
	return added
}

// Get returns the notification with the given id.
func (s *Store) Get(id string) (Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.items[id]
	return n, ok
}

// List returns all notifications, newest first.
func (s *Store) List() []Notification {
	s.mu.RLock()
	out := make([]Notification, 0, len(s.items))
	for _, n := range s.items {
		out = append(out, n)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Len returns the number of notifications.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// UnreadCount returns the number of unread notifications.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, item := range s.items {
		if !item.Read {
			n++
		}
	}
	return n
}

// MarkRead marks id read locally, then on the server. The local flag is
// reverted if the server call fails.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	n, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("mark read %s: %w", id, ErrNotFound)
	}
	if n.Read {
		s.mu.Unlock()
		return nil
	}
	n.Read = true
	s.items[id] = n
	s.mu.Unlock()

	if s.remote == nil {
		return nil
	}
	if err := s.remote.MarkNotificationRead(ctx, id); err != nil {
		s.revert([]string{id})
		return fmt.Errorf("mark read %s: %w", id, err)
	}
	return nil
}

// MarkAllRead marks every notification read locally, then on the server,
// reverting the ones it changed if the server call fails.
func (s *Store) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	var changed []string
	for id, n := range s.items {
		if !n.Read {
			n.Read = true
			s.items[id] = n
			changed = append(changed, id)
		}
	}
	s.mu.Unlock()

	if s.remote == nil {
		return nil
	}
	if err := s.remote.MarkAllNotificationsRead(ctx); err != nil {
		s.revert(changed)
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

// ClearAll deletes notifications on the server and, on success, locally.
func (s *Store) ClearAll(ctx context.Context) error {
	if s.remote != nil {
		if err := s.remote.ClearNotifications(ctx); err != nil {
			return fmt.Errorf("clear notifications: %w", err)
		}
	}

	s.mu.Lock()
	s.items = make(map[string]Notification)
	s.mu.Unlock()
	return nil
}

// revert clears the read flag on ids that are still present.
func (s *Store) revert(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if n, ok := s.items[id]; ok {
			n.Read = false
			s.items[id] = n
		}
	}
	s.logger.Warn("reverted optimistic read", "count", len(ids))
}

// OnEvent applies "notification" push events.
func (s *Store) OnEvent(e dispatch.Event) error {
	if e.Kind != dispatch.KindNotification {
		return nil
	}

	n, err := Decode(e.Data)
	if err != nil {
		return err
	}
	s.Upsert(n)
	s.logger.Debug("notification pushed", "id", n.ID, "type", n.Type)
	return nil
}
