package frame

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrEmptyFrame     = errors.New("frame: empty frame")
	ErrUnknownPacket  = errors.New("frame: unknown packet type")
	ErrUnknownMessage = errors.New("frame: unknown message type")
	ErrMalformedFrame = errors.New("frame: malformed event payload")
	ErrMissingEvent   = errors.New("frame: event name missing")
	ErrInvalidKind    = errors.New("frame: invalid frame kind")
	ErrMalformedOpen  = errors.New("frame: malformed open payload")
	ErrNotOpenFrame   = errors.New("frame: not an open frame")
)

// PacketType is the outer (transport) packet marker.
type PacketType int

const (
	PacketOpen    PacketType = 0
	PacketClose   PacketType = 1
	PacketPing    PacketType = 2
	PacketPong    PacketType = 3
	PacketMessage PacketType = 4
	PacketUpgrade PacketType = 5
	PacketNoop    PacketType = 6
)

// String returns the packet name.
func (p PacketType) String() string {
	switch p {
	case PacketOpen:
		return "open"
	case PacketClose:
		return "close"
	case PacketPing:
		return "ping"
	case PacketPong:
		return "pong"
	case PacketMessage:
		return "message"
	case PacketUpgrade:
		return "upgrade"
	case PacketNoop:
		return "noop"
	default:
		return "unknown"
	}
}

// MessageType is the inner (session) packet marker carried by PacketMessage.
type MessageType int

const (
	MessageConnect      MessageType = 0
	MessageDisconnect   MessageType = 1
	MessageEvent        MessageType = 2
	MessageAck          MessageType = 3
	MessageConnectError MessageType = 4
	MessageBinaryEvent  MessageType = 5
	MessageBinaryAck    MessageType = 6
)

// String returns the message name.
func (m MessageType) String() string {
	switch m {
	case MessageConnect:
		return "connect"
	case MessageDisconnect:
		return "disconnect"
	case MessageEvent:
		return "event"
	case MessageAck:
		return "ack"
	case MessageConnectError:
		return "connect_error"
	case MessageBinaryEvent:
		return "binary_event"
	case MessageBinaryAck:
		return "binary_ack"
	default:
		return "unknown"
	}
}

// Kind separates protocol-level frames from application events.
type Kind int

const (
	KindControl Kind = iota
	KindEvent
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindEvent {
		return "event"
	}
	return "control"
}

// Frame is one parsed unit of socket data.
//
// Control frames carry Packet, Message (when Packet is PacketMessage) and the
// raw trailing Data. Event frames carry Event and Args, the JSON elements that
// follow the event name.
type Frame struct {
	Kind    Kind
	Packet  PacketType
	Message MessageType
	Data    string

	Event string
	Args  []json.RawMessage
}

// Payload returns the first event argument, or nil when there is none.
func (f Frame) Payload() json.RawMessage {
	if len(f.Args) == 0 {
		return nil
	}
	return f.Args[0]
}

// IsControl reports whether f is a control frame for the given packet.
func (f Frame) IsControl(p PacketType) bool {
	return f.Kind == KindControl && f.Packet == p
}

// IsMessage reports whether f is an inner control frame of type m.
func (f Frame) IsMessage(m MessageType) bool {
	return f.Kind == KindControl && f.Packet == PacketMessage && f.Message == m
}

// OpenPayload is the session config sent by the server in the open packet.
type OpenPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"` // milliseconds
	PingTimeout  int64    `json:"pingTimeout"`  // milliseconds
	MaxPayload   int64    `json:"maxPayload"`
}

// HeartbeatWindow is how long the client may go without a server ping.
// Returns 0 when the server did not advertise ping settings.
func (o OpenPayload) HeartbeatWindow() time.Duration {
	if o.PingInterval <= 0 {
		return 0
	}
	return time.Duration(o.PingInterval+o.PingTimeout) * time.Millisecond
}
