// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Transport byte counts and decode errors
//   - Session state, message rates by type and inbound sequence gaps
//   - Tick pipeline events, history appends and group parse errors
//   - Publisher and tick writer throughput and failures
package metrics
