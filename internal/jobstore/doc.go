// Package jobstore is the in-memory persistence collaborator for the
// moonraker package: it consumes MutationIntents and maintains the job
// records, per-device totals, and last-seen timestamps they describe.
//
// UpsertJob and FinalizeJob are idempotent, keyed by (device id, job id),
// with merge semantics: nil fields in an intent leave the stored value
// untouched. RecomputeTotals derives aggregates from finalized jobs only,
// so duplicate emission from the live status path and the history path
// converges on the same stored state.
//
// All methods are safe for concurrent use.
package jobstore
