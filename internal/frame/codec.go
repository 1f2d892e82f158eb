package frame

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Decode parses raw socket text into a Frame.
//
// Decode never panics. Any input it cannot interpret yields an error and a
// zero Frame; callers drop the frame and continue with the next one.
func Decode(raw string) (Frame, error) {
	if raw == "" {
		return Frame{}, ErrEmptyFrame
	}

	packet, ok := parseDigit(raw[0])
	if !ok || packet > int(PacketNoop) {
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownPacket, raw[0])
	}

	if PacketType(packet) != PacketMessage {
		return Frame{
			Kind:   KindControl,
			Packet: PacketType(packet),
			Data:   raw[1:],
		}, nil
	}

	if len(raw) < 2 {
		return Frame{}, fmt.Errorf("%w: missing inner marker", ErrUnknownMessage)
	}

	msg, ok := parseDigit(raw[1])
	if !ok || msg > int(MessageBinaryAck) {
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownMessage, raw[1])
	}

	body := raw[2:]
	if MessageType(msg) != MessageEvent {
		return Frame{
			Kind:    KindControl,
			Packet:  PacketMessage,
			Message: MessageType(msg),
			Data:    body,
		}, nil
	}

	return decodeEvent(body)
}

// decodeEvent parses the JSON array of an event frame: [name, args...].
func decodeEvent(body string) (Frame, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(body), &elems); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(elems) == 0 {
		return Frame{}, ErrMissingEvent
	}

	var name string
	if err := json.Unmarshal(elems[0], &name); err != nil {
		return Frame{}, fmt.Errorf("%w: event name is not a string", ErrMalformedFrame)
	}
	if name == "" {
		return Frame{}, ErrMissingEvent
	}

	var args []json.RawMessage
	if len(elems) > 1 {
		args = elems[1:]
	}

	return Frame{
		Kind:    KindEvent,
		Packet:  PacketMessage,
		Message: MessageEvent,
		Event:   name,
		Args:    args,
	}, nil
}

// Encode renders a Frame as socket text.
//
// Event arguments are re-marshaled, so Decode returns them in compact JSON
// form and an empty Args slice comes back nil. Control frames cannot carry
// the event marker; use KindEvent for those.
func Encode(f Frame) (string, error) {
	switch f.Kind {
	case KindEvent:
		if f.Event == "" {
			return "", ErrMissingEvent
		}
		elems := make([]any, 0, len(f.Args)+1)
		elems = append(elems, f.Event)
		for _, a := range f.Args {
			elems = append(elems, a)
		}
		data, err := json.Marshal(elems)
		if err != nil {
			return "", fmt.Errorf("marshal event %q: %w", f.Event, err)
		}
		return packetPrefix(PacketMessage) + messagePrefix(MessageEvent) + string(data), nil

	case KindControl:
		if f.Packet < PacketOpen || f.Packet > PacketNoop {
			return "", ErrUnknownPacket
		}
		if f.Packet == PacketMessage {
			if f.Message < MessageConnect || f.Message > MessageBinaryAck {
				return "", ErrUnknownMessage
			}
			if f.Message == MessageEvent {
				return "", ErrInvalidKind
			}
			return packetPrefix(PacketMessage) + messagePrefix(f.Message) + f.Data, nil
		}
		return packetPrefix(f.Packet) + f.Data, nil

	default:
		return "", ErrInvalidKind
	}
}

// MustEncode is Encode for frames known to be valid, such as the constructors below.
func MustEncode(f Frame) string {
	s, err := Encode(f)
	if err != nil {
		panic(err)
	}
	return s
}

// Ping returns a server-style ping control frame.
func Ping() Frame {
	return Frame{Kind: KindControl, Packet: PacketPing}
}

// Pong returns the pong answering a ping carrying data (e.g. "probe").
func Pong(data string) Frame {
	return Frame{Kind: KindControl, Packet: PacketPong, Data: data}
}

// Connect returns the session-connect frame, "40".
func Connect() Frame {
	return Frame{Kind: KindControl, Packet: PacketMessage, Message: MessageConnect}
}

// Disconnect returns the session disconnect frame, "41".
func Disconnect() Frame {
	return Frame{Kind: KindControl, Packet: PacketMessage, Message: MessageDisconnect}
}

// Close returns the transport close frame, "1".
func Close() Frame {
	return Frame{Kind: KindControl, Packet: PacketClose}
}

// NewEvent builds an event frame, marshaling payload as the single argument.
// A nil payload produces an event with no arguments.
func NewEvent(name string, payload any) (Frame, error) {
	if name == "" {
		return Frame{}, ErrMissingEvent
	}

	f := Frame{
		Kind:    KindEvent,
		Packet:  PacketMessage,
		Message: MessageEvent,
		Event:   name,
	}
	if payload == nil {
		return f, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	f.Args = []json.RawMessage{data}
	return f, nil
}

// ParseOpen extracts the session config from an open control frame.
func ParseOpen(f Frame) (OpenPayload, error) {
	if !f.IsControl(PacketOpen) {
		return OpenPayload{}, ErrNotOpenFrame
	}

	var open OpenPayload
	if f.Data == "" {
		return open, nil
	}
	if err := json.Unmarshal([]byte(f.Data), &open); err != nil {
		return OpenPayload{}, fmt.Errorf("%w: %v", ErrMalformedOpen, err)
	}
	return open, nil
}

func parseDigit(b byte) (int, bool) {
	if b < '0' || b > '9' {
		return 0, false
	}
	return int(b - '0'), true
}

func packetPrefix(p PacketType) string {
	return strconv.Itoa(int(p))
}

func messagePrefix(m MessageType) string {
	return strconv.Itoa(int(m))
}
