package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/printwatch/printwatch-core/internal/infrastructure/config"
)

// Logger wraps slog.Logger with service-wide default fields and
// level-based filtering. Every log line produced through it carries the
// service name and build version so fleet-wide log aggregation can tell
// Printwatch instances apart.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from the logging section of the application
// config. Format selects JSON (production) or text (development)
// output; Output selects stdout or stderr.
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, writerFor(cfg.Output))
}

// NewWithWriter is New with an explicit output writer. Tests use it to
// capture log lines in a buffer.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "printwatch"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// Default creates a logger for use before configuration is loaded:
// JSON to stdout at info level. Only startup code should need it.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

// With returns a child Logger carrying extra default attributes.
//
// Example:
//
//	mqttLog := log.With("component", "mqtt")
//	mqttLog.Info("connected") // includes component=mqtt
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithDevice returns a child Logger scoped to one printer. All session
// and reconciliation logs for a device share this attribute so its
// lifecycle can be followed across reconnects.
func (l *Logger) WithDevice(deviceID string) *Logger {
	return l.With("device_id", deviceID)
}

// writerFor maps the configured output name onto a destination.
// Anything other than "stderr" falls back to stdout.
func writerFor(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel converts a config level string to slog.Level, defaulting
// to info for unrecognised values.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
