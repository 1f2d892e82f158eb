// Package session composes the realtime pieces for one signed-in user.
//
// A Session owns the connection manager, event dispatcher, fallback poller,
// notification store and unread counter for a single identity. The
// Controller swaps sessions on login and logout so one user's events never
// reach another user's state.
package session
