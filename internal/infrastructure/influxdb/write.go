package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteJobProgress records one live print-progress sample: completion
// fraction in [0,1], active print seconds, and filament extruded in
// millimetres. Called at status-update cadence while a job runs; the
// write is batched and non-blocking, and silently dropped when the
// client is disconnected.
func (c *Client) WriteJobProgress(printerID, jobID string, progress, printSeconds, filamentMM float64) {
	c.WritePointWithTime(
		"print_progress",
		map[string]string{
			"printer_id": printerID,
			"job_id":     jobID,
		},
		map[string]interface{}{
			"progress":      progress,
			"print_seconds": printSeconds,
			"filament_mm":   filamentMM,
		},
		time.Now(),
	)
}

// WriteJobFinished records a job reaching a terminal status
// ("completed", "error", "cancelled"). The point is timestamped with
// the job's end time, not the write time, so history records that
// arrive late still land in the right place.
func (c *Client) WriteJobFinished(printerID, jobID, status string, printSeconds, filamentMM float64, endedAt time.Time) {
	c.WritePointWithTime(
		"print_jobs",
		map[string]string{
			"printer_id": printerID,
			"status":     status,
		},
		map[string]interface{}{
			"job_id":        jobID,
			"print_seconds": printSeconds,
			"filament_mm":   filamentMM,
		},
		endedAt,
	)
}

// WritePoint writes an arbitrary measurement timestamped now. Tags
// should stay low-cardinality; fields carry the data.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes an arbitrary measurement with an explicit
// timestamp. All other write methods funnel through here.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
