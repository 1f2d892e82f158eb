package notification

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotFound  = errors.New("notification not found")
	ErrMissingID = errors.New("notification id missing")
)

// Notification is one user-facing notification.
type Notification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Type      string          `json:"type"` // e.g. "booking", "message", "review"
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Data      json.RawMessage `json:"data,omitempty"` // Opaque payload, passed through untouched
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Wire is a notification as the server sends it, in list responses and in
// "notification" push events.
//
// Ids arrive as "id" or "_id" and as strings or numbers. The read flag
// arrives as "read" or "isRead".
type Wire struct {
	ID        FlexID          `json:"id"`
	MongoID   FlexID          `json:"_id"`
	UserID    FlexID          `json:"userId"`
	Recipient FlexID          `json:"recipient"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Body      string          `json:"body"`
	Data      json.RawMessage `json:"data"`
	Read      *bool           `json:"read"`
	IsRead    *bool           `json:"isRead"`
	CreatedAt json.RawMessage `json:"createdAt"`
}

// FlexID accepts a JSON string or number and holds it as a string.
type FlexID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}
