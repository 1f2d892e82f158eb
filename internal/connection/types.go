package connection

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rickgao/tutorlink-realtime/internal/reconnect"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrStaleConnection  = errors.New("connection stale (no ping)")
	ErrHandshakeTimeout = errors.New("handshake timeout")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrNotReady         = errors.New("connection not ready")
	ErrNoIdentity       = errors.New("no user identity")
	ErrServerClosed     = errors.New("server closed transport")
	ErrServerDisconnect = errors.New("server disconnected session")
	ErrConnectRejected  = errors.New("session connect rejected")
	ErrInvalidURL       = errors.New("invalid socket url")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// State is the Connection Manager state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateTransportOpen
	StateReady
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateTransportOpen:
		return "transport_open"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // Full socket URL including query
	Token            string        // Bearer token (empty = no Authorization header)
	HandshakeTimeout time.Duration // WebSocket dial handshake timeout
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL              string           // Server base URL (http, https, ws or wss)
	Path             string           // Socket endpoint path, default "/socket.io/"
	Token            string           // Bearer token passed on the upgrade request
	HandshakeTimeout time.Duration    // Max wait from dial to the open packet
	WriteTimeout     time.Duration    // Write deadline for sends
	PingTimeout      time.Duration    // Heartbeat window when the server advertises none
	BufferSize       int              // Per-connection inbound buffer
	Reconnect        reconnect.Config // Backoff and attempt budget
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Path:             "/socket.io/",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingTimeout:      60 * time.Second,
		BufferSize:       256,
		Reconnect:        reconnect.DefaultConfig(),
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State            State
	UserID           string
	ConnID           string // Identifier of the current attempt, for log correlation
	SID              string // Server session id from the open packet
	Attempt          int    // Reconnect attempts since the last reset
	ReconnectPending bool
	FramesReceived   int64
	DecodeErrors     int64
}

// BuildURL turns a server base URL and endpoint path into the socket URL,
// mapping http(s) to ws(s) and adding the transport query.
func BuildURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if path == "" {
		path = "/socket.io/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()

	return u.String(), nil
}
