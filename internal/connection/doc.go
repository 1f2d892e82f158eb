// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Maintains one WebSocket connection tied to the current user identity
//   - Runs the open / session-connect handshake and registers the user
//   - Answers server pings and watches for a stale heartbeat
//   - Hands transport loss to the reconnect policy
//   - Forwards decoded server events to the dispatcher
package connection
