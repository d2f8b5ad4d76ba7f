// Printwatch Core - 3D Printer Fleet Monitor
//
// This is the main entry point for the Printwatch Core application.
// Printwatch maintains live WebSocket sessions to a fleet of Moonraker
// printers, reconciles their print-job lifecycles into a queryable store,
// and optionally announces fleet state over MQTT and InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/printwatch/printwatch-core/internal/infrastructure/config"
	"github.com/printwatch/printwatch-core/internal/infrastructure/influxdb"
	"github.com/printwatch/printwatch-core/internal/infrastructure/logging"
	"github.com/printwatch/printwatch-core/internal/infrastructure/mqtt"
	"github.com/printwatch/printwatch-core/internal/jobstore"
	"github.com/printwatch/printwatch-core/internal/moonraker"
	"github.com/printwatch/printwatch-core/internal/notify"
	"github.com/printwatch/printwatch-core/internal/registry"
	"github.com/printwatch/printwatch-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Printwatch Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// The job store is the in-memory source of truth for job records.
	store := jobstore.New()

	// Fan mutations out to the store plus any optional sinks.
	fanout := &intentFanout{log: log}
	fanout.appliers = append(fanout.appliers, store)
	if influxClient != nil {
		fanout.appliers = append(fanout.appliers, telemetry.NewRecorder(influxClient))
	}

	// Connection manager owns one session per printer.
	manager := moonraker.NewManager(moonraker.ManagerConfig{
		HandshakeTimeout: cfg.GetHandshakeTimeout(),
		SubscribeTimeout: cfg.GetSubscribeTimeout(),
		TouchInterval:    cfg.GetTouchInterval(),
		IntentBuffer:     cfg.Printers.IntentBuffer,
	}, fanout, log.With("component", "moonraker"))
	defer func() {
		log.Info("stopping connection manager")
		if closeErr := manager.Close(); closeErr != nil {
			log.Error("error closing connection manager", "error", closeErr)
		}
	}()

	// Status announcer publishes fleet snapshots over MQTT.
	var announcer *notify.StatusAnnouncer
	if mqttClient != nil {
		announcer = notify.NewStatusAnnouncer(notify.AnnouncerConfig{
			Interval:  cfg.GetStatusInterval(),
			Publisher: mqttClient,
			Snapshots: manager.Snapshots,
			Logger:    log.With("component", "notify"),
		})
		fanout.setAnnouncer(announcer)
		announcer.Start(ctx)
		defer func() {
			log.Info("stopping status announcer")
			announcer.Stop()
		}()
	}

	// Load the printer registry and activate configured printers.
	printerRegistry := registry.New(cfg.Printers.File, manager, log.With("component", "registry"))
	if err := printerRegistry.Sync(); err != nil {
		return fmt.Errorf("loading printer registry: %w", err)
	}
	log.Info("printer registry synced",
		"path", cfg.Printers.File,
		"printers", len(printerRegistry.Active()),
	)

	// SIGHUP re-reads the printers file without restarting sessions that
	// haven't changed.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				log.Info("SIGHUP received, reloading printer registry")
				if syncErr := printerRegistry.Sync(); syncErr != nil {
					log.Error("registry reload failed", "error", syncErr)
					continue
				}
				log.Info("printer registry reloaded",
					"printers", len(printerRegistry.Active()),
				)
				if announcer != nil {
					if pubErr := announcer.PublishNow(); pubErr != nil {
						log.Warn("post-reload status announce failed", "error", pubErr)
					}
				}
			}
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls will run in reverse order:
	// 1. Registry/announcer
	// 2. Connection manager
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)

	log.Info("Printwatch Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PRINTWATCH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PRINTWATCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// intentFanout applies each mutation to every configured sink and, for job
// finalisations, fires an MQTT job event. The store always comes first so a
// telemetry failure can never shadow the source of truth.
type intentFanout struct {
	appliers []moonraker.IntentApplier
	log      *logging.Logger

	announcerMu sync.RWMutex
	announcer   *notify.StatusAnnouncer
}

// setAnnouncer wires the job-event announcer. Called once during startup
// before any printer is activated.
func (f *intentFanout) setAnnouncer(a *notify.StatusAnnouncer) {
	f.announcerMu.Lock()
	f.announcer = a
	f.announcerMu.Unlock()
}

// Apply implements moonraker.IntentApplier.
func (f *intentFanout) Apply(intent moonraker.MutationIntent) error {
	var firstErr error
	for _, applier := range f.appliers {
		if err := applier.Apply(intent); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if fin, ok := intent.(moonraker.FinalizeJob); ok {
		f.announcerMu.RLock()
		announcer := f.announcer
		f.announcerMu.RUnlock()

		if announcer != nil {
			if err := announcer.AnnounceJobFinished(fin.DeviceID, fin.JobID, fin.Fields); err != nil {
				f.log.Warn("job event announce failed",
					"printer_id", fin.DeviceID,
					"job_id", fin.JobID,
					"error", err,
				)
			}
		}
	}

	return firstErr
}
