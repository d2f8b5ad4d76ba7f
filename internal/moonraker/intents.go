package moonraker

import "time"

// Job status values carried in JobFields.Status.
const (
	JobStatusPrinting  = "printing"
	JobStatusPaused    = "paused"
	JobStatusCompleted = "completed"
	JobStatusError     = "error"
	JobStatusCancelled = "cancelled"
)

// MutationIntent is the package's only output to persistence: an
// instruction describing a single job-state change. Intents are immutable
// values, emitted at most once per logical state transition, and delivered
// in arrival order per device.
//
// The applier must make UpsertJob and FinalizeJob idempotent, keyed by
// (device id, job id): the live status path and the history path can both
// emit for the same job, and duplicate application must converge on one
// record.
type MutationIntent interface {
	// Device returns the device id the intent applies to.
	Device() string

	mutationIntent()
}

// JobFields is a partial job record. Nil fields are "no change"; the
// applier merges non-nil fields into the stored record.
type JobFields struct {
	Filename      *string
	Status        *string
	StartTime     *time.Time
	EndTime       *time.Time
	PrintDuration *float64
	TotalDuration *float64
	FilamentUsed  *float64
	Progress      *float64
}

// UpsertJob creates or updates the job record for (DeviceID, JobID).
type UpsertJob struct {
	DeviceID string
	JobID    string
	Fields   JobFields
}

// FinalizeJob marks the job record finished and merges its final fields.
type FinalizeJob struct {
	DeviceID string
	JobID    string
	Fields   JobFields
}

// RecomputeTotals recomputes the device's aggregates from finalized jobs.
type RecomputeTotals struct {
	DeviceID string
}

// TouchLastSeen records that the device produced an event at At.
type TouchLastSeen struct {
	DeviceID string
	At       time.Time
}

func (i UpsertJob) Device() string       { return i.DeviceID }
func (i FinalizeJob) Device() string     { return i.DeviceID }
func (i RecomputeTotals) Device() string { return i.DeviceID }
func (i TouchLastSeen) Device() string   { return i.DeviceID }

func (UpsertJob) mutationIntent()       {}
func (FinalizeJob) mutationIntent()     {}
func (RecomputeTotals) mutationIntent() {}
func (TouchLastSeen) mutationIntent()   {}

// IntentApplier consumes the MutationIntent stream. Implementations own
// their concurrency control; the Manager guarantees per-device ordering of
// Apply calls.
type IntentApplier interface {
	Apply(intent MutationIntent) error
}

// Small helpers for building JobFields values.
func strPtr(s string) *string        { return &s }
func floatPtr(f float64) *float64    { return &f }
func timePtr(t time.Time) *time.Time { return &t }
