// Package notification holds the client-side notification list and the
// message unread counter.
//
// Both are fed from two directions, the fallback poller and socket pushes,
// and apply every update as an idempotent upsert keyed by id.
package notification
