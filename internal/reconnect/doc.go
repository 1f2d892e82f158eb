// Package reconnect implements the Reconnection Policy component.
//
// The policy:
//   - Schedules at most one pending reconnect at a time (a new disconnect cancels the old timer)
//   - Waits min(base * 2^attempt, max) before each attempt
//   - Gives up after a fixed number of attempts until Reset is called
package reconnect
