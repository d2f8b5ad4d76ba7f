package jobstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/printwatch/printwatch-core/internal/moonraker"
)

// Job is a stored print-job record.
type Job struct {
	DeviceID      string
	JobID         string
	Filename      string
	Status        string
	StartTime     time.Time
	EndTime       time.Time
	PrintDuration float64
	TotalDuration float64
	FilamentUsed  float64
	Progress      float64
	Finalized     bool
	UpdatedAt     time.Time
}

// Totals are the per-device aggregates over finalized jobs.
type Totals struct {
	DeviceID        string
	Jobs            int
	Completed       int
	PrintSeconds    float64
	FilamentUsed    float64
	LongestPrintSec float64
}

type jobKey struct {
	deviceID string
	jobID    string
}

// Store is an in-memory IntentApplier.
type Store struct {
	mu       sync.RWMutex
	jobs     map[jobKey]*Job
	totals   map[string]Totals
	lastSeen map[string]time.Time

	now func() time.Time
}

var _ moonraker.IntentApplier = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		jobs:     make(map[jobKey]*Job),
		totals:   make(map[string]Totals),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Apply applies one mutation intent.
func (s *Store) Apply(intent moonraker.MutationIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch i := intent.(type) {
	case moonraker.UpsertJob:
		s.upsert(i.DeviceID, i.JobID, i.Fields, false)
	case moonraker.FinalizeJob:
		s.upsert(i.DeviceID, i.JobID, i.Fields, true)
	case moonraker.RecomputeTotals:
		s.recomputeTotals(i.DeviceID)
	case moonraker.TouchLastSeen:
		s.lastSeen[i.DeviceID] = i.At
	default:
		return fmt.Errorf("jobstore: unsupported intent %T", intent)
	}
	return nil
}

// upsert merges non-nil fields into the (deviceID, jobID) record, creating
// it if needed. Finalizing an already-finalized record is a no-op beyond
// the merge, which keeps double finalization idempotent.
func (s *Store) upsert(deviceID, jobID string, fields moonraker.JobFields, finalize bool) {
	key := jobKey{deviceID: deviceID, jobID: jobID}
	job, ok := s.jobs[key]
	if !ok {
		job = &Job{DeviceID: deviceID, JobID: jobID}
		s.jobs[key] = job
	}

	if fields.Filename != nil {
		job.Filename = *fields.Filename
	}
	if fields.Status != nil {
		job.Status = *fields.Status
	}
	if fields.StartTime != nil {
		job.StartTime = *fields.StartTime
	}
	if fields.EndTime != nil {
		job.EndTime = *fields.EndTime
	}
	if fields.PrintDuration != nil {
		job.PrintDuration = *fields.PrintDuration
	}
	if fields.TotalDuration != nil {
		job.TotalDuration = *fields.TotalDuration
	}
	if fields.FilamentUsed != nil {
		job.FilamentUsed = *fields.FilamentUsed
	}
	if fields.Progress != nil {
		job.Progress = *fields.Progress
	}
	if finalize {
		job.Finalized = true
	}
	job.UpdatedAt = s.now()
}

// recomputeTotals rebuilds the device's aggregates from finalized jobs
// only; in-flight jobs never count.
func (s *Store) recomputeTotals(deviceID string) {
	totals := Totals{DeviceID: deviceID}
	for key, job := range s.jobs {
		if key.deviceID != deviceID || !job.Finalized {
			continue
		}
		totals.Jobs++
		if job.Status == moonraker.JobStatusCompleted {
			totals.Completed++
		}
		totals.PrintSeconds += job.PrintDuration
		totals.FilamentUsed += job.FilamentUsed
		if job.PrintDuration > totals.LongestPrintSec {
			totals.LongestPrintSec = job.PrintDuration
		}
	}
	s.totals[deviceID] = totals
}

// Job returns a copy of the stored record, if present.
func (s *Store) Job(deviceID, jobID string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobKey{deviceID: deviceID, jobID: jobID}]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// DeviceJobs returns all records for a device, most recently updated last.
func (s *Store) DeviceJobs(deviceID string) []Job {
	s.mu.RLock()
	jobs := make([]Job, 0)
	for key, job := range s.jobs {
		if key.deviceID == deviceID {
			jobs = append(jobs, *job)
		}
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].UpdatedAt.Equal(jobs[j].UpdatedAt) {
			return jobs[i].JobID < jobs[j].JobID
		}
		return jobs[i].UpdatedAt.Before(jobs[j].UpdatedAt)
	})
	return jobs
}

// TotalsFor returns the last recomputed aggregates for a device.
func (s *Store) TotalsFor(deviceID string) Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals[deviceID]
}

// LastSeen returns the device's most recent touch timestamp.
func (s *Store) LastSeen(deviceID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.lastSeen[deviceID]
	return at, ok
}
