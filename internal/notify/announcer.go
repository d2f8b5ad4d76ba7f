package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/printwatch/printwatch-core/internal/infrastructure/mqtt"
	"github.com/printwatch/printwatch-core/internal/moonraker"
)

// defaultAnnounceInterval is used when the config leaves the interval unset.
const defaultAnnounceInterval = 15 * time.Second

// Publisher is the interface for publishing announcement messages.
// This is typically implemented by an MQTT client.
type Publisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// Logger is the narrow logging interface the announcer needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StatusAnnouncer publishes retained per-printer connection snapshots at a
// fixed interval, plus one-shot job-finished events on demand.
type StatusAnnouncer struct {
	interval  time.Duration
	publisher Publisher
	snapshots func() []moonraker.ConnectionState
	topics    mqtt.Topics
	logger    Logger

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// AnnouncerConfig holds configuration for the status announcer.
type AnnouncerConfig struct {
	// Interval is how often to publish status snapshots.
	// Default: 15 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher Publisher

	// Snapshots returns the current connection state of every active
	// printer. Typically moonraker.Manager.Snapshots.
	Snapshots func() []moonraker.ConnectionState

	// Logger receives publish failures. Optional.
	Logger Logger
}

// statusMessage is the JSON shape published to printwatch/status/<printer>.
type statusMessage struct {
	PrinterID   string `json:"printer_id"`
	Phase       string `json:"phase"`
	RetryCount  int    `json:"retry_count"`
	NextRetryAt string `json:"next_retry_at,omitempty"`
	LastEventAt string `json:"last_event_at,omitempty"`
	AnnouncedAt string `json:"announced_at"`
}

// jobMessage is the JSON shape published to printwatch/job/<printer>.
type jobMessage struct {
	PrinterID    string   `json:"printer_id"`
	JobID        string   `json:"job_id"`
	Status       string   `json:"status"`
	Filename     string   `json:"filename,omitempty"`
	PrintSeconds *float64 `json:"print_seconds,omitempty"`
	FilamentMM   *float64 `json:"filament_mm,omitempty"`
	EndedAt      string   `json:"ended_at,omitempty"`
}

// NewStatusAnnouncer creates a new status announcer.
//
// Parameters:
//   - cfg: Configuration for the announcer
//
// Returns:
//   - *StatusAnnouncer: Ready to start (call Start to begin announcing)
func NewStatusAnnouncer(cfg AnnouncerConfig) *StatusAnnouncer {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultAnnounceInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &StatusAnnouncer{
		interval:  interval,
		publisher: cfg.Publisher,
		snapshots: cfg.Snapshots,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start begins periodic status announcing.
// Must be called after creation. Call Stop to shut down.
//
// Parameters:
//   - ctx: Context for cancellation (will stop announcing when cancelled)
func (a *StatusAnnouncer) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.announceLoop(ctx)
}

// Stop gracefully stops status announcing.
// Safe to call multiple times (uses sync.Once).
func (a *StatusAnnouncer) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
	})
}

// PublishNow publishes a snapshot of every active printer immediately.
// Useful after a significant event such as a registry reload.
func (a *StatusAnnouncer) PublishNow() error {
	if a.publisher == nil || !a.publisher.IsConnected() {
		return mqtt.ErrNotConnected
	}

	var firstErr error
	for _, state := range a.snapshots() {
		if err := a.publishState(state); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AnnounceJobFinished publishes a one-shot job event for a finalized job.
//
// Parameters:
//   - printerID: Printer the job ran on
//   - jobID: Job identifier
//   - fields: Final job fields; nil members are omitted from the payload
func (a *StatusAnnouncer) AnnounceJobFinished(printerID, jobID string, fields moonraker.JobFields) error {
	if a.publisher == nil || !a.publisher.IsConnected() {
		return mqtt.ErrNotConnected
	}

	msg := jobMessage{
		PrinterID:    printerID,
		JobID:        jobID,
		PrintSeconds: fields.PrintDuration,
		FilamentMM:   fields.FilamentUsed,
	}
	if fields.Status != nil {
		msg.Status = *fields.Status
	}
	if fields.Filename != nil {
		msg.Filename = *fields.Filename
	}
	if fields.EndTime != nil {
		msg.EndedAt = fields.EndTime.UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding job event: %w", err)
	}

	return a.publisher.Publish(a.topics.PrinterJob(printerID), payload, 1, false)
}

// announceLoop runs the periodic status announcing.
func (a *StatusAnnouncer) announceLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	// Publish initial snapshot so subscribers see the fleet right away.
	if err := a.PublishNow(); err != nil {
		a.logger.Warn("initial status announce failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case <-ticker.C:
			if err := a.PublishNow(); err != nil {
				a.logger.Warn("status announce failed", "error", err)
			}
		}
	}
}

// publishState publishes one printer's retained status snapshot.
func (a *StatusAnnouncer) publishState(state moonraker.ConnectionState) error {
	msg := statusMessage{
		PrinterID:   state.DeviceID,
		Phase:       string(state.Phase),
		RetryCount:  state.RetryCount,
		AnnouncedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if !state.NextRetryAt.IsZero() {
		msg.NextRetryAt = state.NextRetryAt.UTC().Format(time.RFC3339)
	}
	if !state.LastEventAt.IsZero() {
		msg.LastEventAt = state.LastEventAt.UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding status for %s: %w", state.DeviceID, err)
	}

	return a.publisher.Publish(a.topics.PrinterStatus(state.DeviceID), payload, 1, true)
}

// nopLogger discards all announcer log output.
type nopLogger struct{}

func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
