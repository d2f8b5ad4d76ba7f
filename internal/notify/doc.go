// Package notify publishes printer fleet announcements over MQTT.
//
// This package manages:
//   - Periodic retained connection-status snapshots per printer
//   - One-shot job-finished events as jobs reach terminal states
//
// # Architecture
//
// The StatusAnnouncer owns a single reporting goroutine. On every tick it
// pulls the current connection snapshots from the manager and publishes one
// retained message per printer. Retained delivery means a dashboard that
// connects late immediately sees the whole fleet without waiting a full
// interval.
//
//	Manager snapshots ─► StatusAnnouncer ─► printwatch/status/<printer>
//	Job finalisation  ─► StatusAnnouncer ─► printwatch/job/<printer>
//
// The announcer is optional: when MQTT is disabled in configuration the
// service simply never constructs one.
package notify
