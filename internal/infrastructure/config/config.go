package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Printwatch Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Printers PrintersConfig `yaml:"printers"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PrintersConfig contains printer-registry and session settings.
type PrintersConfig struct {
	// File is the path to the printers registry YAML file.
	File string `yaml:"file"`

	// HandshakeTimeout bounds each WebSocket dial, in seconds.
	HandshakeTimeout int `yaml:"handshake_timeout"`

	// SubscribeTimeout bounds each subscribe-ack wait, in seconds.
	SubscribeTimeout int `yaml:"subscribe_timeout"`

	// TouchInterval is the minimum spacing between last-seen updates
	// per printer, in seconds.
	TouchInterval int `yaml:"touch_interval"`

	// IntentBuffer is the per-printer mutation queue capacity.
	IntentBuffer int `yaml:"intent_buffer"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// StatusInterval is how often connection snapshots are announced,
	// in seconds.
	StatusInterval int `yaml:"status_interval"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PRINTWATCH_SECTION_KEY
// For example: PRINTWATCH_PRINTERS_FILE, PRINTWATCH_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Printers: PrintersConfig{
			File:             "./configs/printers.yaml",
			HandshakeTimeout: 10,
			SubscribeTimeout: 10,
			TouchInterval:    30,
			IntentBuffer:     64,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "printwatch-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			StatusInterval: 15,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PRINTWATCH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Printers
	if v := os.Getenv("PRINTWATCH_PRINTERS_FILE"); v != "" {
		cfg.Printers.File = v
	}

	// MQTT
	if v := os.Getenv("PRINTWATCH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PRINTWATCH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PRINTWATCH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("PRINTWATCH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Printers.File == "" {
		errs = append(errs, "printers.file is required")
	}
	if c.Printers.HandshakeTimeout <= 0 {
		errs = append(errs, "printers.handshake_timeout must be positive")
	}
	if c.Printers.SubscribeTimeout <= 0 {
		errs = append(errs, "printers.subscribe_timeout must be positive")
	}
	if c.Printers.TouchInterval <= 0 {
		errs = append(errs, "printers.touch_interval must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}
	if c.MQTT.StatusInterval <= 0 {
		errs = append(errs, "mqtt.status_interval must be positive")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set PRINTWATCH_INFLUXDB_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetHandshakeTimeout returns the WebSocket dial timeout as a Duration.
func (c *Config) GetHandshakeTimeout() time.Duration {
	return time.Duration(c.Printers.HandshakeTimeout) * time.Second
}

// GetSubscribeTimeout returns the subscribe-ack timeout as a Duration.
func (c *Config) GetSubscribeTimeout() time.Duration {
	return time.Duration(c.Printers.SubscribeTimeout) * time.Second
}

// GetTouchInterval returns the last-seen update spacing as a Duration.
func (c *Config) GetTouchInterval() time.Duration {
	return time.Duration(c.Printers.TouchInterval) * time.Second
}

// GetStatusInterval returns the MQTT announce interval as a Duration.
func (c *Config) GetStatusInterval() time.Duration {
	return time.Duration(c.MQTT.StatusInterval) * time.Second
}
