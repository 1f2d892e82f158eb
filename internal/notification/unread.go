package notification

import (
	"log/slog"
	"sync"

	"github.com/rickgao/tutorlink-realtime/internal/dispatch"
)

// UnreadCounter tracks the owner's unread message count.
//
// Polls and unread_count pushes set the value outright. A new_message push
// addressed to the owner increments it. A messages_read push by the owner
// (or with no reader) and local mark-reads decrement it. The count never goes below zero.
type UnreadCounter struct {
	ownerID string
	logger  *slog.Logger

	mu    sync.Mutex
	count int
}

// NewUnreadCounter creates a counter for ownerID starting at zero.
func NewUnreadCounter(ownerID string, logger *slog.Logger) *UnreadCounter {
	if logger == nil {
		logger = slog.Default()
	}
	return &UnreadCounter{
		ownerID: ownerID,
		logger:  logger,
	}
}

// Count returns the current value.
func (u *UnreadCounter) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.count
}

// Set replaces the value. Negative input is stored as zero.
func (u *UnreadCounter) Set(n int) {
	if n < 0 {
		n = 0
	}
	u.mu.Lock()
	u.count = n
	u.mu.Unlock()
}

// Increment adds one.
func (u *UnreadCounter) Increment() {
	u.mu.Lock()
	u.count++
	u.mu.Unlock()
}

// Decrement subtracts n, stopping at zero.
func (u *UnreadCounter) Decrement(n int) {
	if n <= 0 {
		return
	}
	u.mu.Lock()
	u.count -= n
	if u.count < 0 {
		u.count = 0
	}
	u.mu.Unlock()
}

// OnEvent applies unread_count, new_message and messages_read pushes.
func (u *UnreadCounter) OnEvent(e dispatch.Event) error {
	switch e.Kind {
	case dispatch.KindUnreadCount:
		var p dispatch.UnreadCountUpdate
		if err := e.Decode(&p); err != nil {
			return err
		}
		u.Set(p.UnreadCount)

	case dispatch.KindNewMessage:
		var p dispatch.NewMessage
		if err := e.Decode(&p); err != nil {
			return err
		}
		if p.ReceiverID == u.ownerID {
			u.Increment()
		}

	case dispatch.KindMessagesRead:
		var p dispatch.MessagesRead
		if err := e.Decode(&p); err != nil {
			return err
		}
		// Pushes without a reader are addressed to this socket's user.
		if p.ReaderID != "" && p.ReaderID != u.ownerID {
			return nil
		}
		n := p.Count
		if n == 0 {
			n = len(p.MessageIDs)
		}
		if n == 0 {
			n = 1
		}
		u.Decrement(n)
	}
	return nil
}
