// Package telemetry forwards job mutations to time-series storage.
//
// The Recorder implements moonraker.IntentApplier and translates the
// mutation stream into InfluxDB points: live upserts become print_progress
// samples and finalisations become print_jobs records. It carries no state
// of its own; the store remains the source of truth and telemetry is purely
// additive.
//
// Like the MQTT announcer, the recorder is optional: when InfluxDB is
// disabled in configuration the mutation stream simply skips it.
package telemetry
