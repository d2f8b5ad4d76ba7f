package jobstore

import (
	"testing"
	"time"

	"github.com/printwatch/printwatch-core/internal/moonraker"
)

func strPtr(s string) *string        { return &s }
func floatPtr(f float64) *float64    { return &f }
func timePtr(t time.Time) *time.Time { return &t }

func TestStoreUpsertMergesFields(t *testing.T) {
	s := New()

	if err := s.Apply(moonraker.UpsertJob{
		DeviceID: "P1",
		JobID:    "J1",
		Fields: moonraker.JobFields{
			Filename: strPtr("benchy.gcode"),
			Status:   strPtr(moonraker.JobStatusPrinting),
		},
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	// Partial update must not erase earlier fields.
	if err := s.Apply(moonraker.UpsertJob{
		DeviceID: "P1",
		JobID:    "J1",
		Fields:   moonraker.JobFields{PrintDuration: floatPtr(120)},
	}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	job, ok := s.Job("P1", "J1")
	if !ok {
		t.Fatal("job not found")
	}
	if job.Filename != "benchy.gcode" {
		t.Errorf("filename = %q, want benchy.gcode", job.Filename)
	}
	if job.Status != moonraker.JobStatusPrinting {
		t.Errorf("status = %q, want printing", job.Status)
	}
	if job.PrintDuration != 120 {
		t.Errorf("duration = %v, want 120", job.PrintDuration)
	}
	if job.Finalized {
		t.Error("upsert finalized the job")
	}
}

func TestStoreFinalizeIsIdempotent(t *testing.T) {
	s := New()

	finalize := moonraker.FinalizeJob{
		DeviceID: "P1",
		JobID:    "J1",
		Fields: moonraker.JobFields{
			Status:        strPtr(moonraker.JobStatusCompleted),
			PrintDuration: floatPtr(120),
		},
	}

	// Simulate the live status path and the history path both firing.
	if err := s.Apply(finalize); err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}
	if err := s.Apply(moonraker.RecomputeTotals{DeviceID: "P1"}); err != nil {
		t.Fatalf("Apply(recompute) error = %v", err)
	}
	first := s.TotalsFor("P1")

	if err := s.Apply(finalize); err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	if err := s.Apply(moonraker.RecomputeTotals{DeviceID: "P1"}); err != nil {
		t.Fatalf("Apply(recompute) error = %v", err)
	}
	second := s.TotalsFor("P1")

	jobs := s.DeviceJobs("P1")
	if len(jobs) != 1 {
		t.Fatalf("got %d job records, want exactly 1", len(jobs))
	}
	if jobs[0].PrintDuration != 120 {
		t.Errorf("duration = %v, want 120", jobs[0].PrintDuration)
	}
	if first != second {
		t.Errorf("totals changed across duplicate finalize: %+v vs %+v", first, second)
	}
	if second.Jobs != 1 || second.PrintSeconds != 120 {
		t.Errorf("totals = %+v, want 1 job / 120s", second)
	}
}

func TestStoreTotalsCountFinalizedJobsOnly(t *testing.T) {
	s := New()

	s.Apply(moonraker.UpsertJob{
		DeviceID: "P1",
		JobID:    "live",
		Fields: moonraker.JobFields{
			Status:        strPtr(moonraker.JobStatusPrinting),
			PrintDuration: floatPtr(999),
		},
	})
	s.Apply(moonraker.FinalizeJob{
		DeviceID: "P1",
		JobID:    "done",
		Fields: moonraker.JobFields{
			Status:        strPtr(moonraker.JobStatusCompleted),
			PrintDuration: floatPtr(100),
			FilamentUsed:  floatPtr(50),
		},
	})
	s.Apply(moonraker.FinalizeJob{
		DeviceID: "P1",
		JobID:    "failed",
		Fields: moonraker.JobFields{
			Status:        strPtr(moonraker.JobStatusError),
			PrintDuration: floatPtr(30),
		},
	})
	s.Apply(moonraker.RecomputeTotals{DeviceID: "P1"})

	totals := s.TotalsFor("P1")
	if totals.Jobs != 2 {
		t.Errorf("jobs = %d, want 2 (in-flight job must not count)", totals.Jobs)
	}
	if totals.Completed != 1 {
		t.Errorf("completed = %d, want 1", totals.Completed)
	}
	if totals.PrintSeconds != 130 {
		t.Errorf("print seconds = %v, want 130", totals.PrintSeconds)
	}
	if totals.FilamentUsed != 50 {
		t.Errorf("filament = %v, want 50", totals.FilamentUsed)
	}
	if totals.LongestPrintSec != 100 {
		t.Errorf("longest = %v, want 100", totals.LongestPrintSec)
	}
}

func TestStoreTotalsIsolatedPerDevice(t *testing.T) {
	s := New()

	s.Apply(moonraker.FinalizeJob{
		DeviceID: "P1",
		JobID:    "J1",
		Fields: moonraker.JobFields{
			Status:        strPtr(moonraker.JobStatusCompleted),
			PrintDuration: floatPtr(100),
		},
	})
	s.Apply(moonraker.RecomputeTotals{DeviceID: "P1"})

	if totals := s.TotalsFor("P2"); totals.Jobs != 0 {
		t.Errorf("P2 totals = %+v, want empty", totals)
	}
}

func TestStoreTouchLastSeen(t *testing.T) {
	s := New()
	at := time.Unix(1715000000, 0)

	if err := s.Apply(moonraker.TouchLastSeen{DeviceID: "P1", At: at}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	got, ok := s.LastSeen("P1")
	if !ok {
		t.Fatal("last seen missing")
	}
	if !got.Equal(at) {
		t.Errorf("last seen = %v, want %v", got, at)
	}
	if _, ok := s.LastSeen("P2"); ok {
		t.Error("P2 has last seen without any touch")
	}
}

func TestStoreStartTimeMerge(t *testing.T) {
	s := New()
	start := time.Unix(1715000000, 0)

	s.Apply(moonraker.UpsertJob{
		DeviceID: "P1",
		JobID:    "J1",
		Fields:   moonraker.JobFields{StartTime: timePtr(start)},
	})
	s.Apply(moonraker.FinalizeJob{
		DeviceID: "P1",
		JobID:    "J1",
		Fields:   moonraker.JobFields{EndTime: timePtr(start.Add(time.Hour))},
	})

	job, _ := s.Job("P1", "J1")
	if !job.StartTime.Equal(start) {
		t.Errorf("start = %v, want %v", job.StartTime, start)
	}
	if !job.EndTime.Equal(start.Add(time.Hour)) {
		t.Errorf("end = %v, want %v", job.EndTime, start.Add(time.Hour))
	}
	if !job.Finalized {
		t.Error("job not finalized")
	}
}
