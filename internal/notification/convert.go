package notification

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Decode parses one wire notification.
func Decode(data []byte) (Notification, error) {
	var w Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	n := w.ToModel()
	if n.ID == "" {
		return Notification{}, ErrMissingID
	}
	return n, nil
}

// ToModel converts a Wire notification to Notification.
func (w *Wire) ToModel() Notification {
	id := string(w.ID)
	if id == "" {
		id = string(w.MongoID)
	}

	userID := string(w.UserID)
	if userID == "" {
		userID = string(w.Recipient)
	}

	body := w.Message
	if body == "" {
		body = w.Body
	}

	var read bool
	switch {
	case w.Read != nil:
		read = *w.Read
	case w.IsRead != nil:
		read = *w.IsRead
	}

	var data json.RawMessage
	if len(w.Data) > 0 && string(w.Data) != "null" {
		data = append(json.RawMessage(nil), w.Data...)
	}

	return Notification{
		ID:        id,
		UserID:    userID,
		Type:      w.Type,
		Title:     w.Title,
		Body:      body,
		Data:      data,
		Read:      read,
		CreatedAt: ParseTimestamp(w.CreatedAt),
	}
}

// ParseTimestamp parses an ISO 8601 string or a Unix millisecond number.
// Returns the zero time for empty or invalid input.
func ParseTimestamp(raw json.RawMessage) time.Time {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return time.Time{}
	}

	if strings.HasPrefix(s, `"`) {
		var iso string
		if err := json.Unmarshal(raw, &iso); err != nil {
			return time.Time{}
		}
		return parseISO(iso)
	}

	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func parseISO(iso string) time.Time {
	iso = strings.TrimSpace(iso)
	if iso == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return time.Time{}
		}
	}
	return t.UTC()
}
