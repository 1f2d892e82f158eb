package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNoPayload   = errors.New("dispatch: event has no payload")
	ErrUnknownKind = errors.New("dispatch: no typed payload for event")
)

// Kind is the closed set of event names known to this client.
type Kind int

const (
	KindUnknown Kind = iota
	KindRegister
	KindSendMessage
	KindMarkRead
	KindTyping
	KindStopTyping
	KindNewMessage
	KindNotification
	KindUnreadCount
	KindMessagesRead
)

// Wire names of the known events.
const (
	EventRegister     = "register"
	EventSendMessage  = "send_message"
	EventMarkRead     = "mark_read"
	EventTyping       = "typing"
	EventStopTyping   = "stop_typing"
	EventNewMessage   = "new_message"
	EventNotification = "notification"
	EventUnreadCount  = "unread_count"
	EventMessagesRead = "messages_read"
)

var kindByName = map[string]Kind{
	EventRegister:     KindRegister,
	EventSendMessage:  KindSendMessage,
	EventMarkRead:     KindMarkRead,
	EventTyping:       KindTyping,
	EventStopTyping:   KindStopTyping,
	EventNewMessage:   KindNewMessage,
	EventNotification: KindNotification,
	EventUnreadCount:  KindUnreadCount,
	EventMessagesRead: KindMessagesRead,
}

// KindOf maps a wire event name to its Kind.
func KindOf(name string) Kind {
	if k, ok := kindByName[name]; ok {
		return k
	}
	return KindUnknown
}

// String returns the wire name, or "unknown".
func (k Kind) String() string {
	for name, kind := range kindByName {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// SendMessage is the client→server chat message payload.
type SendMessage struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType"`
}

// MarkRead acknowledges a message as read.
type MarkRead struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

// Typing is sent for both typing and stop_typing.
type Typing struct {
	ReceiverID string `json:"receiverId"`
	SenderID   string `json:"senderId"`
}

// NewMessage is a chat message pushed by the server.
type NewMessage struct {
	ID             string `json:"_id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

// UnreadCountUpdate carries the server's current unread message count.
type UnreadCountUpdate struct {
	UnreadCount int `json:"unreadCount"`
}

// MessagesRead reports messages the peer has read.
type MessagesRead struct {
	ConversationID string   `json:"conversationId,omitempty"`
	ReaderID       string   `json:"readerId,omitempty"`
	MessageIDs     []string `json:"messageIds,omitempty"`
	Count          int      `json:"count,omitempty"`
}

// Event is one server event as delivered to subscribers.
type Event struct {
	Name       string
	Kind       Kind
	Data       json.RawMessage
	ReceivedAt time.Time // Zero when the event did not come off the socket
}

// NewEvent builds an Event, resolving Kind from name.
func NewEvent(name string, data json.RawMessage) Event {
	return Event{Name: name, Kind: KindOf(name), Data: data}
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("decode %s: %w", e.Name, ErrNoPayload)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Name, err)
	}
	return nil
}

// Typed decodes the payload into a pointer to the struct registered for its
// Kind. Register yields the user id string. Notification payloads belong to
// the notification package; Typed returns ErrUnknownKind for them and for
// unknown events.
func (e Event) Typed() (any, error) {
	var v any
	switch e.Kind {
	case KindSendMessage:
		v = &SendMessage{}
	case KindMarkRead:
		v = &MarkRead{}
	case KindTyping, KindStopTyping:
		v = &Typing{}
	case KindNewMessage:
		v = &NewMessage{}
	case KindUnreadCount:
		v = &UnreadCountUpdate{}
	case KindMessagesRead:
		v = &MessagesRead{}
	case KindRegister:
		var id string
		if err := e.Decode(&id); err != nil {
			return nil, err
		}
		return id, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, e.Name)
	}

	if err := e.Decode(v); err != nil {
		return nil, err
	}
	return v, nil
}
