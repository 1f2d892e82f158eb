// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection state, frames in and out, decode errors
//   - Reconnect attempts and budget exhaustion
//   - Dispatched events and subscriber failures
//   - Fallback poll results
//   - Journal batch writes and drops
//
// Every method is safe on a nil *Metrics, so components run unchanged
// when metrics are disabled.
package metrics
