// Package moonraker maintains live connections to Moonraker-based 3D printer
// controllers and reconciles their event streams into job-record mutations.
//
// This package manages:
//   - JSON-RPC 2.0 over WebSocket framing (Codec)
//   - One WebSocket session per printer with subscribe handshake (Session)
//   - Deterministic reconnect backoff (NextDelay)
//   - The per-device print-job state machine (Reconciler)
//   - Supervision of all device sessions (Manager)
//
// # Architecture
//
// The Manager owns one supervisor goroutine per activated printer. Each
// supervisor drives a single-use Session through its lifecycle; on failure
// the supervisor sleeps per the backoff ladder and builds a fresh Session.
// Decoded events flow into the shared Reconciler, which folds them into
// per-device active-job state and emits MutationIntents. Intents are
// delivered in arrival order per device to an IntentApplier (the
// persistence collaborator).
//
//	Manager ─► Session ─► Codec ─► Reconciler ─► MutationIntent ─► IntentApplier
//
// # Failure Model
//
// Transport and handshake failures (ErrConnectFailed, ErrSubscribeFailed,
// ErrDisconnected) are retried forever via backoff. Per-frame failures
// (ErrMalformedFrame, ErrUnknownMethod) are logged and dropped without
// touching the connection. One device's failures never affect another
// device's supervisor; a panic inside a supervisor is converted into a
// backoff cycle at the task boundary.
package moonraker
