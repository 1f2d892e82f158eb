// Package poller implements the Fallback Poller component.
//
// The Fallback Poller:
//   - Polls GET /notifications every 10s and GET /messages/unread-count every 30s
//   - Suspends while the realtime connection is Ready and resumes when it is lost
//   - Applies results as idempotent upserts so poll and push never double count
//   - Logs and swallows request failures, keeping the last known state
package poller
