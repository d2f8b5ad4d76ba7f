package moonraker

import (
	"fmt"
	"strings"
	"time"
)

// PrintState is the printer-reported state of the current print.
type PrintState string

// Print states reported in print_stats.state.
const (
	PrintStateStandby   PrintState = "standby"
	PrintStatePrinting  PrintState = "printing"
	PrintStatePaused    PrintState = "paused"
	PrintStateComplete  PrintState = "complete"
	PrintStateError     PrintState = "error"
	PrintStateCancelled PrintState = "cancelled"
)

// Terminal reports whether the state ends the current print run.
func (s PrintState) Terminal() bool {
	switch s {
	case PrintStateComplete, PrintStateError, PrintStateCancelled:
		return true
	default:
		return false
	}
}

// ParsePrintState validates a wire state string.
func ParsePrintState(s string) (PrintState, error) {
	switch state := PrintState(s); state {
	case PrintStateStandby, PrintStatePrinting, PrintStatePaused,
		PrintStateComplete, PrintStateError, PrintStateCancelled:
		return state, nil
	default:
		return "", fmt.Errorf("%w: unknown print state %q", ErrMalformedFrame, s)
	}
}

// EventKind identifies the notification type carried by a DeviceStatusEvent.
type EventKind string

// Handled notification kinds.
const (
	KindStatusUpdate   EventKind = "status_update"
	KindHistoryChanged EventKind = "history_changed"
)

// DeviceStatusEvent is a decoded printer notification. Exactly one of
// Status or History is set, matching Kind. Events are ephemeral: produced
// by the Codec, stamped with the device id by the owning Session, and
// consumed once by the Reconciler.
type DeviceStatusEvent struct {
	DeviceID string
	Kind     EventKind
	Status   *StatusPayload
	History  *HistoryPayload
}

// StatusPayload carries the fields of a notify_status_update. Moonraker
// sends deltas, so every field is optional; nil means "not present in
// this update".
type StatusPayload struct {
	State         *PrintState
	Filename      *string
	PrintDuration *float64
	TotalDuration *float64
	FilamentUsed  *float64
	Progress      *float64
}

// HistoryPayload carries a notify_history_changed notification.
type HistoryPayload struct {
	Action string
	Job    *HistoryJob
}

// History actions this package acts on. Other actions are ignored.
const (
	HistoryActionAdded    = "added"
	HistoryActionFinished = "finished"
)

// HistoryJob is the device's own record of a print job. For the
// "finished" action it is the source of truth for the job's identity and
// final metrics.
type HistoryJob struct {
	JobID         string
	Filename      string
	Status        string
	StartTime     time.Time
	EndTime       time.Time
	PrintDuration float64
	TotalDuration float64
	FilamentUsed  float64
}

// cleanFilename strips Moonraker's staging prefix so the same file is
// named identically in status and history records.
func cleanFilename(name string) string {
	return strings.TrimPrefix(name, ".cache/")
}

// unixTime converts Moonraker's fractional unix-seconds timestamps.
func unixTime(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), int64((sec-float64(int64(sec)))*float64(time.Second)))
}
