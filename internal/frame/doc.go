// Package frame implements the two-layer text framing used on the realtime socket.
//
// Outer (transport) packets:
//   - 0 open (payload: session config JSON)
//   - 1 close
//   - 2 ping, 3 pong
//   - 4 message (wraps an inner packet)
//   - 5 upgrade, 6 noop
//
// Inner (session) packets, only inside a 4-prefixed message:
//   - 0 connect ("40")
//   - 2 event ("42" + JSON array [name, payload...])
//
// The numeric markers must match the server's protocol implementation exactly.
package frame
