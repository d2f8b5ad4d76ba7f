package telemetry

import (
	"time"

	"github.com/printwatch/printwatch-core/internal/moonraker"
)

// Writer is the narrow time-series interface the recorder needs.
// Implemented by influxdb.Client; writes are expected to be non-blocking.
type Writer interface {
	WriteJobProgress(printerID, jobID string, progress, printSeconds, filamentMM float64)
	WriteJobFinished(printerID, jobID, status string, printSeconds, filamentMM float64, endedAt time.Time)
}

// Recorder translates job mutations into time-series points.
//
// Thread Safety:
//   - Apply is safe for concurrent use; the recorder holds no mutable state.
type Recorder struct {
	writer Writer
	now    func() time.Time
}

var _ moonraker.IntentApplier = (*Recorder)(nil)

// NewRecorder creates a recorder writing through the given Writer.
func NewRecorder(writer Writer) *Recorder {
	return &Recorder{
		writer: writer,
		now:    time.Now,
	}
}

// Apply implements moonraker.IntentApplier.
//
// UpsertJob intents carrying metric data become print_progress samples;
// FinalizeJob intents become print_jobs records. Intents with no telemetry
// content (TouchLastSeen, RecomputeTotals, metadata-only upserts) are
// ignored.
func (r *Recorder) Apply(intent moonraker.MutationIntent) error {
	switch i := intent.(type) {
	case moonraker.UpsertJob:
		r.recordProgress(i)
	case moonraker.FinalizeJob:
		r.recordFinished(i)
	}
	return nil
}

func (r *Recorder) recordProgress(i moonraker.UpsertJob) {
	f := i.Fields
	if f.Progress == nil && f.PrintDuration == nil && f.FilamentUsed == nil {
		// Status-only upsert (pause, resume, history rebind); nothing to plot.
		return
	}

	r.writer.WriteJobProgress(i.DeviceID, i.JobID,
		floatOrZero(f.Progress),
		floatOrZero(f.PrintDuration),
		floatOrZero(f.FilamentUsed),
	)
}

func (r *Recorder) recordFinished(i moonraker.FinalizeJob) {
	f := i.Fields

	status := ""
	if f.Status != nil {
		status = *f.Status
	}

	endedAt := r.now()
	if f.EndTime != nil {
		endedAt = *f.EndTime
	}

	r.writer.WriteJobFinished(i.DeviceID, i.JobID, status,
		floatOrZero(f.PrintDuration),
		floatOrZero(f.FilamentUsed),
		endedAt,
	)
}

func floatOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
