package moonraker

import (
	"fmt"
	"sync"
	"time"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// nopLogger discards everything. Used when no logger is injected.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// ActiveJob is the per-device in-memory cursor for the print currently
// running on that device. At most one exists per device at any time.
//
// JobID starts out synthetic ("live-<filename>-<start unix>") because the
// live status stream never carries the device's job identifier; a history
// "added" notification for the same filename rebinds the cursor to the
// device-assigned id.
type ActiveJob struct {
	DeviceID      string
	JobID         string
	Filename      string
	State         PrintState
	StartedAt     time.Time
	PrintDuration float64
	TotalDuration float64
	FilamentUsed  float64
	Progress      float64
}

// Reconciler folds decoded device events into per-device job state and
// emits idempotent MutationIntents.
//
// Two independent paths produce job mutations: the live status stream
// (notify_status_update) and the device's own history records
// (notify_history_changed). The history "finished" path is the correction
// mechanism for terminal transitions the live stream missed, for example
// when the session reconnected mid-print. Both paths key mutations by
// (device id, job id); duplicate emission is safe because the applier is
// required to be idempotent, not because the reconciler suppresses it.
//
// Thread Safety:
//   - HandleEvent and the query methods are safe for concurrent use.
//     Events for a single device must be delivered in arrival order,
//     which the Manager guarantees by calling HandleEvent from each
//     device's own session goroutine.
type Reconciler struct {
	mu     sync.Mutex
	active map[string]*ActiveJob

	emit   func(MutationIntent)
	now    func() time.Time
	logger Logger
}

// NewReconciler creates a Reconciler that delivers intents to emit.
func NewReconciler(emit func(MutationIntent), logger Logger) *Reconciler {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Reconciler{
		active: make(map[string]*ActiveJob),
		emit:   emit,
		now:    time.Now,
		logger: logger,
	}
}

// HandleEvent applies one decoded event to the device's job state.
// Malformed events never reach this method; the codec rejects them and
// the session drops them without involving the reconciler.
func (r *Reconciler) HandleEvent(ev DeviceStatusEvent) {
	var intents []MutationIntent

	r.mu.Lock()
	switch ev.Kind {
	case KindStatusUpdate:
		if ev.Status != nil {
			intents = r.applyStatus(ev.DeviceID, ev.Status)
		}
	case KindHistoryChanged:
		if ev.History != nil {
			intents = r.applyHistory(ev.DeviceID, ev.History)
		}
	default:
		r.logger.Warn("reconciler: unhandled event kind",
			"device_id", ev.DeviceID, "kind", string(ev.Kind))
	}
	r.mu.Unlock()

	// Emit outside the lock so a slow applier for one device cannot
	// stall state transitions for another. Per-device ordering holds
	// because each device's events arrive on its own goroutine.
	for _, intent := range intents {
		r.emit(intent)
	}
}

// ActiveJob returns a copy of the device's current job cursor, if any.
func (r *Reconciler) ActiveJob(deviceID string) (ActiveJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.active[deviceID]
	if !ok {
		return ActiveJob{}, false
	}
	return *job, true
}

// Forget drops the device's job cursor without emitting anything. Called
// when a device is deactivated: its configuration may be changing, so the
// cursor must not carry over to a different target.
func (r *Reconciler) Forget(deviceID string) {
	r.mu.Lock()
	delete(r.active, deviceID)
	r.mu.Unlock()
}

// applyStatus runs the print-state transition table. Caller holds r.mu.
func (r *Reconciler) applyStatus(deviceID string, status *StatusPayload) []MutationIntent {
	job := r.active[deviceID]

	// Metric-only delta: no state field. Fold the metrics into the
	// active job, if there is one.
	if status.State == nil {
		if job == nil {
			return nil
		}
		return []MutationIntent{r.updateMetrics(job, status)}
	}

	switch state := *status.State; state {
	case PrintStatePrinting:
		return r.applyPrinting(deviceID, job, status)

	case PrintStatePaused:
		if job == nil || job.State == PrintStatePaused {
			return nil
		}
		job.State = PrintStatePaused
		return []MutationIntent{UpsertJob{
			DeviceID: deviceID,
			JobID:    job.JobID,
			Fields:   JobFields{Status: strPtr(JobStatusPaused)},
		}}

	case PrintStateComplete, PrintStateError, PrintStateCancelled:
		if job == nil {
			return nil
		}
		return r.finalizeActive(job, state, status)

	case PrintStateStandby:
		// Standby with no active job is a no-op. With one, the device
		// reset without reporting a terminal state (power cycle,
		// firmware restart); close the stale run as cancelled.
		if job == nil {
			return nil
		}
		r.logger.Info("reconciler: device went standby mid-print, cancelling stale job",
			"device_id", deviceID, "job_id", job.JobID)
		return r.finalizeActive(job, PrintStateCancelled, status)

	default:
		return nil
	}
}

// applyPrinting handles an incoming "printing" state. Caller holds r.mu.
func (r *Reconciler) applyPrinting(deviceID string, job *ActiveJob, status *StatusPayload) []MutationIntent {
	// Resume from pause: status field only.
	if job != nil && job.State == PrintStatePaused {
		job.State = PrintStatePrinting
		return []MutationIntent{UpsertJob{
			DeviceID: deviceID,
			JobID:    job.JobID,
			Fields:   JobFields{Status: strPtr(JobStatusPrinting)},
		}}
	}

	// A different filename while a job is active means the device
	// started a new print without reporting the old one's end. Close
	// the old run before opening the new one.
	var intents []MutationIntent
	if job != nil && status.Filename != nil && *status.Filename != "" && *status.Filename != job.Filename {
		r.logger.Info("reconciler: filename changed mid-print, cancelling previous job",
			"device_id", deviceID, "job_id", job.JobID, "filename", *status.Filename)
		intents = r.finalizeActive(job, PrintStateCancelled, nil)
		job = nil
	}

	if job == nil {
		return append(intents, r.startJob(deviceID, status))
	}

	// Progress update on the running job.
	return append(intents, r.updateMetrics(job, status))
}

// startJob creates the active-job cursor and emits the opening upsert.
// Caller holds r.mu.
func (r *Reconciler) startJob(deviceID string, status *StatusPayload) MutationIntent {
	filename := ""
	if status.Filename != nil {
		filename = *status.Filename
	}
	startedAt := r.now()

	job := &ActiveJob{
		DeviceID:  deviceID,
		JobID:     syntheticJobID(filename, startedAt),
		Filename:  filename,
		State:     PrintStatePrinting,
		StartedAt: startedAt,
	}
	applyStatusMetrics(job, status)
	r.active[deviceID] = job

	fields := JobFields{
		Status:    strPtr(JobStatusPrinting),
		StartTime: timePtr(startedAt),
	}
	if filename != "" {
		fields.Filename = strPtr(filename)
	}
	return UpsertJob{DeviceID: deviceID, JobID: job.JobID, Fields: fields}
}

// updateMetrics folds a progress delta into the cursor and emits the
// partial upsert. One upsert per update event; throttling, if any, is the
// applier's concern. Caller holds r.mu.
func (r *Reconciler) updateMetrics(job *ActiveJob, status *StatusPayload) MutationIntent {
	applyStatusMetrics(job, status)
	return UpsertJob{
		DeviceID: job.DeviceID,
		JobID:    job.JobID,
		Fields: JobFields{
			PrintDuration: status.PrintDuration,
			TotalDuration: status.TotalDuration,
			FilamentUsed:  status.FilamentUsed,
			Progress:      status.Progress,
		},
	}
}

// finalizeActive emits the terminal intents for the active job and clears
// the cursor. Caller holds r.mu.
func (r *Reconciler) finalizeActive(job *ActiveJob, state PrintState, status *StatusPayload) []MutationIntent {
	if status != nil {
		applyStatusMetrics(job, status)
	}
	delete(r.active, job.DeviceID)

	endedAt := r.now()
	return []MutationIntent{
		FinalizeJob{
			DeviceID: job.DeviceID,
			JobID:    job.JobID,
			Fields: JobFields{
				Status:        strPtr(jobStatusFor(state)),
				EndTime:       timePtr(endedAt),
				PrintDuration: floatPtr(job.PrintDuration),
				TotalDuration: floatPtr(job.TotalDuration),
				FilamentUsed:  floatPtr(job.FilamentUsed),
			},
		},
		RecomputeTotals{DeviceID: job.DeviceID},
	}
}

// applyHistory handles notify_history_changed. Caller holds r.mu.
func (r *Reconciler) applyHistory(deviceID string, history *HistoryPayload) []MutationIntent {
	switch history.Action {
	case HistoryActionAdded:
		if history.Job == nil || history.Job.JobID == "" {
			return nil
		}
		// The device assigned a durable id to the print it just
		// started. Rebind the live cursor so the status path and the
		// history path converge on one record.
		if job := r.active[deviceID]; job != nil && (job.Filename == history.Job.Filename || job.Filename == "") {
			job.JobID = history.Job.JobID
		}
		return []MutationIntent{UpsertJob{
			DeviceID: deviceID,
			JobID:    history.Job.JobID,
			Fields: JobFields{
				Filename:  strPtr(history.Job.Filename),
				Status:    strPtr(JobStatusPrinting),
				StartTime: timePtr(history.Job.StartTime),
			},
		}}

	case HistoryActionFinished:
		if history.Job == nil || history.Job.JobID == "" {
			return nil
		}
		return r.applyHistoryFinished(deviceID, history.Job)

	default:
		r.logger.Debug("reconciler: ignoring history action",
			"device_id", deviceID, "action", history.Action)
		return nil
	}
}

// applyHistoryFinished finalizes a job from the device's own history
// record. Caller holds r.mu.
func (r *Reconciler) applyHistoryFinished(deviceID string, rec *HistoryJob) []MutationIntent {
	fields := JobFields{
		Filename:      strPtr(rec.Filename),
		Status:        strPtr(historyJobStatus(rec.Status)),
		PrintDuration: floatPtr(rec.PrintDuration),
		TotalDuration: floatPtr(rec.TotalDuration),
		FilamentUsed:  floatPtr(rec.FilamentUsed),
	}
	if !rec.StartTime.IsZero() {
		fields.StartTime = timePtr(rec.StartTime)
	}
	if !rec.EndTime.IsZero() {
		fields.EndTime = timePtr(rec.EndTime)
	}

	intents := []MutationIntent{
		UpsertJob{DeviceID: deviceID, JobID: rec.JobID, Fields: fields},
		FinalizeJob{DeviceID: deviceID, JobID: rec.JobID, Fields: fields},
	}

	// If a live cursor is still open for this print under a synthetic
	// id, close its record too so it does not linger unfinalized.
	if job := r.active[deviceID]; job != nil && (job.JobID == rec.JobID || job.Filename == rec.Filename) {
		if job.JobID != rec.JobID {
			intents = append(intents, FinalizeJob{
				DeviceID: deviceID,
				JobID:    job.JobID,
				Fields:   fields,
			})
		}
		delete(r.active, deviceID)
	}

	return append(intents, RecomputeTotals{DeviceID: deviceID})
}

// applyStatusMetrics copies the non-nil metric fields into the cursor.
func applyStatusMetrics(job *ActiveJob, status *StatusPayload) {
	if status.Filename != nil && *status.Filename != "" {
		job.Filename = *status.Filename
	}
	if status.PrintDuration != nil {
		job.PrintDuration = *status.PrintDuration
	}
	if status.TotalDuration != nil {
		job.TotalDuration = *status.TotalDuration
	}
	if status.FilamentUsed != nil {
		job.FilamentUsed = *status.FilamentUsed
	}
	if status.Progress != nil {
		job.Progress = *status.Progress
	}
}

// syntheticJobID builds a provisional job identity for the live path.
// Including the start time keeps two runs of the same file distinct even
// when the device reuses transient identifiers across reconnects.
func syntheticJobID(filename string, startedAt time.Time) string {
	if filename == "" {
		filename = "unnamed"
	}
	return fmt.Sprintf("live-%s-%d", filename, startedAt.Unix())
}

// jobStatusFor maps a terminal print state to the stored job status.
func jobStatusFor(state PrintState) string {
	switch state {
	case PrintStateComplete:
		return JobStatusCompleted
	case PrintStateError:
		return JobStatusError
	default:
		return JobStatusCancelled
	}
}

// historyJobStatus normalizes the status string from a history record.
func historyJobStatus(status string) string {
	switch status {
	case "completed", "complete":
		return JobStatusCompleted
	case "error", "klippy_shutdown", "klippy_disconnect":
		return JobStatusError
	case "cancelled", "canceled":
		return JobStatusCancelled
	default:
		return JobStatusCompleted
	}
}
