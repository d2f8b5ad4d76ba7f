package moonraker

import "errors"

// Domain errors for the moonraker package.
var (
	// ErrConnectFailed is returned when the WebSocket transport to a
	// printer cannot be opened. Always retried via backoff.
	ErrConnectFailed = errors.New("moonraker: connection failed")

	// ErrSubscribeFailed is returned when the subscribe handshake times
	// out or the printer rejects the subscription. Retried like a
	// connection failure.
	ErrSubscribeFailed = errors.New("moonraker: subscribe failed")

	// ErrDisconnected is returned when an established session loses its
	// connection. This is the expected steady-state failure mode.
	ErrDisconnected = errors.New("moonraker: disconnected")

	// ErrMalformedFrame is returned when an inbound frame is not valid
	// JSON-RPC or its payload cannot be interpreted. Recoverable per
	// frame; callers log and drop the frame.
	ErrMalformedFrame = errors.New("moonraker: malformed frame")

	// ErrUnknownMethod is returned when a notification uses a method the
	// codec does not handle. Recoverable per frame.
	ErrUnknownMethod = errors.New("moonraker: unknown notification method")

	// ErrInvalidEndpoint is returned by Activate when a device endpoint
	// URL is structurally invalid. Surfaced synchronously; never enters
	// the retry loop.
	ErrInvalidEndpoint = errors.New("moonraker: invalid endpoint URL")

	// ErrUnknownDevice is returned when an operation references a device
	// id that is not currently activated.
	ErrUnknownDevice = errors.New("moonraker: unknown device")

	// ErrManagerClosed is returned when operating on a manager after
	// Close.
	ErrManagerClosed = errors.New("moonraker: manager closed")
)
