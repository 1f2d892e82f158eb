package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rickgao/tutorlink-realtime/internal/notification"
)

// GetNotifications fetches the caller's notifications. Entries without an
// id are skipped.
func (c *Client) GetNotifications(ctx context.Context) ([]notification.Notification, error) {
	var resp NotificationsResponse
	if err := c.get(ctx, "/notifications", nil, &resp); err != nil {
		return nil, fmt.Errorf("get notifications: %w", err)
	}

	out := make([]notification.Notification, 0, len(resp.Notifications))
	for i := range resp.Notifications {
		n := resp.Notifications[i].ToModel()
		if n.ID == "" {
			c.logger.Debug("skipping notification without id", "index", i)
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	path := "/notifications/" + url.PathEscape(id) + "/read"
	if err := c.mutate(ctx, http.MethodPatch, path); err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllNotificationsRead marks every notification read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	if err := c.mutate(ctx, http.MethodPatch, "/notifications/read-all"); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// ClearNotifications deletes every notification.
func (c *Client) ClearNotifications(ctx context.Context) error {
	if err := c.mutate(ctx, http.MethodDelete, "/notifications"); err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}
	return nil
}

// GetUnreadCount fetches the caller's unread message count.
func (c *Client) GetUnreadCount(ctx context.Context) (int, error) {
	var resp UnreadCountResponse
	if err := c.get(ctx, "/messages/unread-count", nil, &resp); err != nil {
		return 0, fmt.Errorf("get unread count: %w", err)
	}
	return resp.Data.UnreadCount, nil
}
