package api

import "github.com/rickgao/tutorlink-realtime/internal/notification"

// NotificationsResponse from GET /notifications
type NotificationsResponse struct {
	Success       bool                `json:"success"`
	Notifications []notification.Wire `json:"notifications"`
}

// UnreadCountResponse from GET /messages/unread-count
type UnreadCountResponse struct {
	Success bool `json:"success"`
	Data    struct {
		UnreadCount int `json:"unreadCount"`
	} `json:"data"`
}

// StatusResponse from PATCH and DELETE notification endpoints.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
