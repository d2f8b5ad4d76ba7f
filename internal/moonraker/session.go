package moonraker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Default timeouts for the session handshake.
const (
	// defaultHandshakeTimeout bounds the WebSocket dial.
	defaultHandshakeTimeout = 10 * time.Second

	// defaultSubscribeTimeout bounds the wait for the subscribe ack.
	defaultSubscribeTimeout = 10 * time.Second
)

// SessionState is the lifecycle state of one Session instance.
type SessionState string

// Session lifecycle states. A session moves strictly forward; Closed is
// terminal and the owner builds a new instance to retry.
const (
	SessionIdle        SessionState = "idle"
	SessionConnecting  SessionState = "connecting"
	SessionSubscribing SessionState = "subscribing"
	SessionStreaming   SessionState = "streaming"
	SessionClosed      SessionState = "closed"
)

// SessionConfig holds the connection parameters for one device session.
type SessionConfig struct {
	// DeviceID is stamped onto every event this session emits.
	DeviceID string

	// Endpoint is the device's base URL (http(s):// or ws(s)://).
	Endpoint string

	// APIKey is sent as the X-Api-Key header when non-empty.
	APIKey string

	// HandshakeTimeout bounds the WebSocket dial.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// SubscribeTimeout bounds the wait for the subscribe acknowledgment.
	// Default: 10 seconds.
	SubscribeTimeout time.Duration
}

// EventSink receives decoded events in arrival order.
type EventSink func(DeviceStatusEvent)

// Session owns exactly one WebSocket connection to one device. It is
// single-use: Run drives the connection from dial through the subscribe
// handshake into the streaming loop and returns when the connection ends.
// The owner never resurrects a closed session; it builds a new one.
//
// Side effects are network I/O only. The only shared state is what the
// owner injects: the event sink and the optional state callback.
type Session struct {
	cfg     SessionConfig
	codec   *Codec
	sink    EventSink
	onState func(SessionState)
	logger  Logger

	// instanceID distinguishes attempts for the same device in logs.
	instanceID string
}

// NewSession creates a session for one connection attempt.
//
// Parameters:
//   - cfg: connection target and timeouts
//   - sink: receives decoded events; must not be nil
//   - logger: optional, nil for silent operation
func NewSession(cfg SessionConfig, sink EventSink, logger Logger) *Session {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.SubscribeTimeout == 0 {
		cfg.SubscribeTimeout = defaultSubscribeTimeout
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Session{
		cfg:        cfg,
		codec:      &Codec{},
		sink:       sink,
		logger:     logger,
		instanceID: uuid.NewString(),
	}
}

// SetOnStateChange registers a callback invoked on every lifecycle
// transition. Must be called before Run.
func (s *Session) SetOnStateChange(callback func(SessionState)) {
	s.onState = callback
}

// Run drives the session until the connection ends or ctx is cancelled.
//
// Returns:
//   - ErrConnectFailed if the transport cannot be opened
//   - ErrSubscribeFailed if the subscribe handshake fails or times out
//   - ErrDisconnected when an established connection is lost
//   - ctx.Err() when cancelled
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(SessionClosed)

	wsURL, err := WebsocketURL(s.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	s.setState(SessionConnecting)
	conn, err := s.dial(ctx, wsURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	defer conn.Close()

	// Closing the connection is the only way to unblock a pending read,
	// so watch for cancellation on the side.
	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watcherDone:
		}
	}()

	s.setState(SessionSubscribing)
	if err := s.subscribe(ctx, conn); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	s.setState(SessionStreaming)
	s.logger.Info("session streaming",
		"device_id", s.cfg.DeviceID, "session_id", s.instanceID)
	return s.stream(ctx, conn)
}

// dial opens the WebSocket transport.
func (s *Session) dial(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}

	var header http.Header
	if s.cfg.APIKey != "" {
		header = http.Header{"X-Api-Key": []string{s.cfg.APIKey}}
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return conn, nil
}

// subscribe sends the printer.objects.subscribe request and waits for its
// correlated acknowledgment. The ack's result carries the full current
// printer state, which is forwarded to the sink as a synthetic status
// event so the reconciler sees the state the printer was already in.
func (s *Session) subscribe(ctx context.Context, conn *websocket.Conn) error {
	id, frame, err := s.codec.EncodeSubscribe(SubscribedObjects)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.SubscribeTimeout)); err != nil {
		return fmt.Errorf("%w: set write deadline: %w", ErrSubscribeFailed, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: write: %w", ErrSubscribeFailed, err)
	}

	// Bound the whole ack wait, not individual reads. Notifications may
	// arrive before the ack; they are forwarded, not discarded.
	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.SubscribeTimeout)); err != nil {
		return fmt.Errorf("%w: set read deadline: %w", ErrSubscribeFailed, err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: awaiting ack: %w", ErrSubscribeFailed, err)
		}

		decoded, err := s.codec.DecodeFrame(raw)
		if err != nil {
			s.dropFrame(err)
			continue
		}

		if decoded.Event != nil {
			s.forward(decoded.Event)
			continue
		}
		if decoded.Response == nil || decoded.Response.ID != id {
			continue
		}

		if decoded.Response.Err != nil {
			return fmt.Errorf("%w: %w", ErrSubscribeFailed, decoded.Response.Err)
		}

		// Streaming reads block indefinitely; liveness is the manager's
		// concern via lastEventAt.
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			return fmt.Errorf("%w: clear read deadline: %w", ErrSubscribeFailed, err)
		}

		s.primeFromAck(decoded.Response.Result)
		return nil
	}
}

// primeFromAck converts the subscribe ack's status snapshot into an
// initial status event.
func (s *Session) primeFromAck(result []byte) {
	status, err := s.codec.DecodeStatusResult(result)
	if err != nil {
		s.dropFrame(err)
		return
	}
	if status == nil {
		return
	}
	s.forward(&DeviceStatusEvent{Kind: KindStatusUpdate, Status: status})
}

// stream runs the receive loop until the connection ends.
func (s *Session) stream(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("%w: peer closed", ErrDisconnected)
			}
			return fmt.Errorf("%w: %w", ErrDisconnected, err)
		}

		decoded, err := s.codec.DecodeFrame(raw)
		if err != nil {
			s.dropFrame(err)
			continue
		}

		if decoded.Event != nil {
			s.forward(decoded.Event)
			continue
		}
		// Late or unsolicited responses carry nothing we need while
		// streaming.
		s.logger.Debug("session ignoring response frame",
			"device_id", s.cfg.DeviceID, "rpc_id", decoded.Response.ID)
	}
}

// forward stamps the device id and hands the event to the sink.
func (s *Session) forward(ev *DeviceStatusEvent) {
	ev.DeviceID = s.cfg.DeviceID
	s.sink(*ev)
}

// dropFrame logs a recoverable per-frame decode failure. Unknown methods
// are routine chatter (proc_stat updates and the like); malformed frames
// are worth a warning.
func (s *Session) dropFrame(err error) {
	if errors.Is(err, ErrUnknownMethod) {
		s.logger.Debug("session dropping frame",
			"device_id", s.cfg.DeviceID, "error", err)
		return
	}
	s.logger.Warn("session dropping frame",
		"device_id", s.cfg.DeviceID, "error", err)
}

// setState reports a lifecycle transition to the owner.
func (s *Session) setState(state SessionState) {
	if s.onState != nil {
		s.onState(state)
	}
}

// WebsocketURL normalizes a device endpoint to its WebSocket address:
// http(s) schemes become ws(s), and the /websocket path is appended when
// missing.
func WebsocketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q (use http, https, ws or wss)", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", endpoint)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/websocket"
	}
	return u.String(), nil
}
