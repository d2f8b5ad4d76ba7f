package moonraker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Defaults for manager-owned tunables.
const (
	// defaultTouchInterval is the minimum spacing between TouchLastSeen
	// intents per device.
	defaultTouchInterval = 30 * time.Second

	// defaultIntentBuffer is the per-device intent queue capacity.
	defaultIntentBuffer = 64
)

// Phase is the externally visible connection phase of one device.
type Phase string

// Connection phases.
const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseSubscribing  Phase = "subscribing"
	PhaseConnected    Phase = "connected"
	PhaseBackoff      Phase = "backoff"
)

// DeviceConfig identifies a printer and its connection target. Immutable
// for the lifetime of an activation; changing a device means deactivating
// and re-activating it.
type DeviceConfig struct {
	// DeviceID is the opaque stable key for the printer.
	DeviceID string

	// Endpoint is the printer's base URL.
	Endpoint string

	// APIKey is the optional Moonraker API key.
	APIKey string
}

// ConnectionState is the per-device transient record exposed to status
// queries. NextRetryAt is meaningful only in PhaseBackoff.
type ConnectionState struct {
	DeviceID    string
	Phase       Phase
	RetryCount  int
	NextRetryAt time.Time
	LastEventAt time.Time
}

// ManagerConfig holds manager-wide tunables shared by every session.
type ManagerConfig struct {
	// HandshakeTimeout bounds each WebSocket dial.
	HandshakeTimeout time.Duration

	// SubscribeTimeout bounds each subscribe-ack wait.
	SubscribeTimeout time.Duration

	// TouchInterval is the minimum spacing between TouchLastSeen
	// intents per device. Default: 30 seconds.
	TouchInterval time.Duration

	// IntentBuffer is the per-device intent queue capacity. Default: 64.
	IntentBuffer int
}

// sessionRunner is the slice of Session the manager drives. Narrowed to
// an interface so supervisor behaviour is testable without network I/O.
type sessionRunner interface {
	Run(ctx context.Context) error
}

// sessionFactory builds one single-use session per connection attempt.
type sessionFactory func(cfg SessionConfig, sink EventSink, onState func(SessionState), logger Logger) sessionRunner

func defaultSessionFactory(cfg SessionConfig, sink EventSink, onState func(SessionState), logger Logger) sessionRunner {
	s := NewSession(cfg, sink, logger)
	s.SetOnStateChange(onState)
	return s
}

// deviceEntry is the manager's record for one activated device. The state
// field is mutated only by the owning supervisor goroutine (and its
// session callbacks); cross-goroutine reads go through the manager mutex.
type deviceEntry struct {
	cfg   DeviceConfig
	state ConnectionState

	cancel    context.CancelFunc
	done      chan struct{}
	intents   chan MutationIntent
	applyDone chan struct{}

	lastTouch time.Time
	stopping  bool
}

// Manager supervises one DeviceSession per activated printer.
//
// Each device gets its own supervisor goroutine that builds a session,
// drives it until it closes, sleeps per the backoff ladder, and repeats.
// Decoded events flow through the shared Reconciler; resulting intents are
// queued on the device's own channel and applied in order by the device's
// apply goroutine, so a slow applier for one printer never delays another.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Snapshot and Snapshots never block on network I/O.
type Manager struct {
	cfg        ManagerConfig
	applier    IntentApplier
	reconciler *Reconciler
	logger     Logger

	// newSession is swapped for a fake in supervisor tests.
	newSession sessionFactory

	mu      sync.Mutex
	devices map[string]*deviceEntry
	closed  bool
}

// NewManager creates a manager delivering intents to applier.
//
// Parameters:
//   - cfg: shared session tunables (zero values take defaults)
//   - applier: persistence collaborator; must not be nil
//   - logger: optional, nil for silent operation
func NewManager(cfg ManagerConfig, applier IntentApplier, logger Logger) *Manager {
	if cfg.TouchInterval <= 0 {
		cfg.TouchInterval = defaultTouchInterval
	}
	if cfg.IntentBuffer <= 0 {
		cfg.IntentBuffer = defaultIntentBuffer
	}
	if logger == nil {
		logger = nopLogger{}
	}

	m := &Manager{
		cfg:        cfg,
		applier:    applier,
		logger:     logger,
		newSession: defaultSessionFactory,
		devices:    make(map[string]*deviceEntry),
	}
	m.reconciler = NewReconciler(m.dispatch, logger)
	return m
}

// Activate starts supervising a device. Activating an already-active
// device id is a no-op. A structurally invalid endpoint is rejected here,
// synchronously, rather than entering the retry loop.
func (m *Manager) Activate(cfg DeviceConfig) error {
	if cfg.DeviceID == "" {
		return fmt.Errorf("%w: empty device id", ErrUnknownDevice)
	}
	if _, err := WebsocketURL(cfg.Endpoint); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if _, exists := m.devices[cfg.DeviceID]; exists {
		m.mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &deviceEntry{
		cfg: cfg,
		state: ConnectionState{
			DeviceID: cfg.DeviceID,
			Phase:    PhaseConnecting,
		},
		cancel:    cancel,
		done:      make(chan struct{}),
		intents:   make(chan MutationIntent, m.cfg.IntentBuffer),
		applyDone: make(chan struct{}),
	}
	m.devices[cfg.DeviceID] = entry
	m.mu.Unlock()

	m.logger.Info("device activated",
		"device_id", cfg.DeviceID, "endpoint", cfg.Endpoint)

	go m.applyLoop(entry)
	go m.supervise(ctx, entry)
	return nil
}

// Deactivate stops supervising a device, interrupting any in-progress
// connect attempt, subscribe wait, read, or backoff sleep. It returns once
// the supervisor has exited, all queued intents for the device are
// applied, and the device's ConnectionState is removed. No further intents
// are emitted for the device afterwards.
func (m *Manager) Deactivate(deviceID string) error {
	m.mu.Lock()
	entry, ok := m.devices[deviceID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	if entry.stopping {
		// Another caller is already tearing this device down.
		m.mu.Unlock()
		<-entry.applyDone
		return nil
	}
	entry.stopping = true
	m.mu.Unlock()

	entry.cancel()
	<-entry.done

	// The supervisor was the only producer; drain what it queued.
	close(entry.intents)
	<-entry.applyDone

	// Drop the job cursor: the device's configuration may be changing
	// and the cursor must not carry over to a different target.
	m.reconciler.Forget(deviceID)

	m.mu.Lock()
	delete(m.devices, deviceID)
	m.mu.Unlock()

	m.logger.Info("device deactivated", "device_id", deviceID)
	return nil
}

// Snapshot returns the device's current ConnectionState.
func (m *Manager) Snapshot(deviceID string) (ConnectionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.devices[deviceID]
	if !ok {
		return ConnectionState{}, false
	}
	return entry.state, true
}

// Snapshots returns the ConnectionState of every tracked device, sorted
// by device id.
func (m *Manager) Snapshots() []ConnectionState {
	m.mu.Lock()
	states := make([]ConnectionState, 0, len(m.devices))
	for _, entry := range m.devices {
		states = append(states, entry.state)
	}
	m.mu.Unlock()

	sort.Slice(states, func(i, j int) bool {
		return states[i].DeviceID < states[j].DeviceID
	})
	return states
}

// ActiveJob exposes the reconciler's job cursor for status queries.
func (m *Manager) ActiveJob(deviceID string) (ActiveJob, bool) {
	return m.reconciler.ActiveJob(deviceID)
}

// Close deactivates every device and rejects further activations.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Deactivate(id); err != nil {
			m.logger.Error("deactivate on close failed", "device_id", id, "error", err)
		}
	}
	return nil
}

// supervise is the per-device supervisor loop: build a session, run it to
// completion, back off, repeat. Exits only on deactivation.
func (m *Manager) supervise(ctx context.Context, entry *deviceEntry) {
	defer close(entry.done)

	for {
		if ctx.Err() != nil {
			return
		}

		err := m.runSession(ctx, entry)
		if ctx.Err() != nil {
			return
		}

		m.mu.Lock()
		retry := entry.state.RetryCount
		delay := NextDelay(retry)
		entry.state.Phase = PhaseBackoff
		entry.state.RetryCount = retry + 1
		entry.state.NextRetryAt = time.Now().Add(delay)
		m.mu.Unlock()

		m.logger.Warn("session ended, backing off",
			"device_id", entry.cfg.DeviceID,
			"error", err,
			"retry_count", retry,
			"delay", delay.String())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runSession drives one session attempt. A panic anywhere inside the
// attempt is caught at this boundary and converted into an error so one
// device's failure becomes a backoff cycle, never a process crash.
func (m *Manager) runSession(ctx context.Context, entry *deviceEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: session panic: %v", ErrDisconnected, r)
			m.logger.Error("session panic recovered",
				"device_id", entry.cfg.DeviceID, "panic", r)
		}
	}()

	session := m.newSession(
		SessionConfig{
			DeviceID:         entry.cfg.DeviceID,
			Endpoint:         entry.cfg.Endpoint,
			APIKey:           entry.cfg.APIKey,
			HandshakeTimeout: m.cfg.HandshakeTimeout,
			SubscribeTimeout: m.cfg.SubscribeTimeout,
		},
		func(ev DeviceStatusEvent) { m.handleEvent(entry, ev) },
		func(state SessionState) { m.handleSessionState(entry, state) },
		m.logger,
	)
	return session.Run(ctx)
}

// handleSessionState mirrors session lifecycle transitions into the
// device's ConnectionState. Reaching the streaming state is the successful
// subscribe that resets the retry counter.
func (m *Manager) handleSessionState(entry *deviceEntry, state SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch state {
	case SessionConnecting:
		entry.state.Phase = PhaseConnecting
	case SessionSubscribing:
		entry.state.Phase = PhaseSubscribing
	case SessionStreaming:
		entry.state.Phase = PhaseConnected
		entry.state.RetryCount = 0
		entry.state.NextRetryAt = time.Time{}
	case SessionIdle, SessionClosed:
		// The supervisor decides what follows a closed session.
	}
}

// handleEvent is the per-device event sink: it stamps liveness, runs the
// reconciler, and emits TouchLastSeen on an event-derived cadence rather
// than a separate timer.
func (m *Manager) handleEvent(entry *deviceEntry, ev DeviceStatusEvent) {
	now := time.Now()

	m.mu.Lock()
	entry.state.LastEventAt = now
	touch := now.Sub(entry.lastTouch) >= m.cfg.TouchInterval
	if touch {
		entry.lastTouch = now
	}
	m.mu.Unlock()

	m.reconciler.HandleEvent(ev)

	if touch {
		entry.intents <- TouchLastSeen{DeviceID: entry.cfg.DeviceID, At: now}
	}
}

// dispatch routes a reconciler intent onto its device's ordered queue.
func (m *Manager) dispatch(intent MutationIntent) {
	m.mu.Lock()
	entry := m.devices[intent.Device()]
	m.mu.Unlock()

	if entry == nil {
		m.logger.Debug("dropping intent for inactive device",
			"device_id", intent.Device())
		return
	}
	entry.intents <- intent
}

// applyLoop drains one device's intent queue into the applier, preserving
// per-device ordering through to persistence.
func (m *Manager) applyLoop(entry *deviceEntry) {
	defer close(entry.applyDone)

	for intent := range entry.intents {
		if err := m.applier.Apply(intent); err != nil {
			m.logger.Error("applying mutation intent failed",
				"device_id", intent.Device(),
				"intent", fmt.Sprintf("%T", intent),
				"error", err)
		}
	}
}
