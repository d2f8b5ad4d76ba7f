package registry

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/printwatch/printwatch-core/internal/moonraker"
)

// Domain errors for the registry package.
var (
	// ErrInvalidPrinters is returned when the printers file fails
	// validation.
	ErrInvalidPrinters = errors.New("registry: invalid printers file")
)

// Printer is one entry in the printers file.
type Printer struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled reports whether the printer should be connected.
func (p Printer) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// deviceConfig converts the entry to the manager's config type.
func (p Printer) deviceConfig() moonraker.DeviceConfig {
	return moonraker.DeviceConfig{
		DeviceID: p.ID,
		Endpoint: p.URL,
		APIKey:   p.APIKey,
	}
}

// printersFile is the YAML document shape.
type printersFile struct {
	Printers []Printer `yaml:"printers"`
}

// Load reads and validates the printers file.
//
// Returns:
//   - []Printer: all entries, including disabled ones
//   - error: if the file cannot be read, parsed, or validated
func Load(path string) ([]Printer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading printers file: %w", err)
	}

	var file printersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing printers file: %w", err)
	}

	if err := validate(file.Printers); err != nil {
		return nil, err
	}
	return file.Printers, nil
}

// validate checks every entry for the mistakes a hand-edited file invites.
func validate(printers []Printer) error {
	var errs []string
	seen := make(map[string]bool, len(printers))

	for i, p := range printers {
		switch {
		case p.ID == "":
			errs = append(errs, fmt.Sprintf("printer %d: id is required", i))
		case seen[p.ID]:
			errs = append(errs, fmt.Sprintf("printer %d: duplicate id %q", i, p.ID))
		default:
			seen[p.ID] = true
		}

		if p.URL == "" {
			errs = append(errs, fmt.Sprintf("printer %d (%s): url is required", i, p.ID))
			continue
		}
		if _, err := moonraker.WebsocketURL(p.URL); err != nil {
			errs = append(errs, fmt.Sprintf("printer %d (%s): %v", i, p.ID, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPrinters, strings.Join(errs, "; "))
	}
	return nil
}

// ConnectionManager is the slice of moonraker.Manager the registry drives.
type ConnectionManager interface {
	Activate(cfg moonraker.DeviceConfig) error
	Deactivate(deviceID string) error
}

// Logger interface for optional logging.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Registry tracks which printers from the file are currently activated.
type Registry struct {
	path   string
	mgr    ConnectionManager
	logger Logger

	mu     sync.Mutex
	active map[string]Printer
}

// New creates a registry for the given printers file.
func New(path string, mgr ConnectionManager, logger Logger) *Registry {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Registry{
		path:   path,
		mgr:    mgr,
		logger: logger,
		active: make(map[string]Printer),
	}
}

// Sync reloads the printers file and reconciles the manager's device set
// with it. Safe to call repeatedly; unchanged printers are untouched.
func (r *Registry) Sync() error {
	printers, err := Load(r.path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[string]Printer, len(printers))
	for _, p := range printers {
		if p.IsEnabled() {
			wanted[p.ID] = p
		}
	}

	// Deactivate printers that disappeared, were disabled, or changed
	// connection target. A changed target is a remove-then-add: the old
	// session must not keep running against a stale URL or key.
	for id, current := range r.active {
		next, keep := wanted[id]
		if keep && next.URL == current.URL && next.APIKey == current.APIKey {
			r.active[id] = next
			continue
		}
		if err := r.mgr.Deactivate(id); err != nil && !errors.Is(err, moonraker.ErrUnknownDevice) {
			r.logger.Error("deactivate failed", "device_id", id, "error", err)
			continue
		}
		delete(r.active, id)
		if !keep {
			r.logger.Info("printer removed", "device_id", id)
		}
	}

	// Activate what is missing (including just-changed printers).
	for id, p := range wanted {
		if _, ok := r.active[id]; ok {
			continue
		}
		if err := r.mgr.Activate(p.deviceConfig()); err != nil {
			r.logger.Error("activate failed", "device_id", id, "error", err)
			continue
		}
		r.active[id] = p
		r.logger.Info("printer activated", "device_id", id, "name", p.Name)
	}

	return nil
}

// Active returns the ids currently held active by the registry.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	return ids
}
