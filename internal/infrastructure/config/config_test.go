package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
printers:
  file: "/etc/printwatch/printers.yaml"
  subscribe_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
logging:
  level: "debug"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Printers.File != "/etc/printwatch/printers.yaml" {
		t.Errorf("Printers.File = %q, want %q", cfg.Printers.File, "/etc/printwatch/printers.yaml")
	}

	if cfg.Printers.SubscribeTimeout != 5 {
		t.Errorf("Printers.SubscribeTimeout = %d, want 5", cfg.Printers.SubscribeTimeout)
	}

	// Unset fields keep their defaults.
	if cfg.Printers.HandshakeTimeout != 10 {
		t.Errorf("Printers.HandshakeTimeout = %d, want default 10", cfg.Printers.HandshakeTimeout)
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
printers:
  file: ""
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty printers.file, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing printers file",
			mutate:  func(c *Config) { c.Printers.File = "" },
			wantErr: true,
		},
		{
			name:    "zero subscribe timeout",
			mutate:  func(c *Config) { c.Printers.SubscribeTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "negative touch interval",
			mutate:  func(c *Config) { c.Printers.TouchInterval = -1 },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name: "mqtt enabled without host",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.Broker.Host = ""
			},
			wantErr: true,
		},
		{
			name: "influxdb enabled without token",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
				c.InfluxDB.Token = ""
			},
			wantErr: true,
		},
		{
			name: "influxdb enabled with url and token",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
				c.InfluxDB.Token = "secret"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		Printers: PrintersConfig{
			HandshakeTimeout: 7,
			SubscribeTimeout: 12,
			TouchInterval:    45,
		},
		MQTT: MQTTConfig{
			StatusInterval: 20,
		},
	}

	if got := cfg.GetHandshakeTimeout().Seconds(); got != 7 {
		t.Errorf("GetHandshakeTimeout() = %v, want 7", got)
	}

	if got := cfg.GetSubscribeTimeout().Seconds(); got != 12 {
		t.Errorf("GetSubscribeTimeout() = %v, want 12", got)
	}

	if got := cfg.GetTouchInterval().Seconds(); got != 45 {
		t.Errorf("GetTouchInterval() = %v, want 45", got)
	}

	if got := cfg.GetStatusInterval().Seconds(); got != 20 {
		t.Errorf("GetStatusInterval() = %v, want 20", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("PRINTWATCH_PRINTERS_FILE", "/custom/printers.yaml")
	t.Setenv("PRINTWATCH_MQTT_HOST", "mqtt.example.com")
	t.Setenv("PRINTWATCH_MQTT_USERNAME", "testuser")
	t.Setenv("PRINTWATCH_MQTT_PASSWORD", "testpass")
	t.Setenv("PRINTWATCH_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Printers.File != "/custom/printers.yaml" {
		t.Errorf("Printers.File = %q, want %q", cfg.Printers.File, "/custom/printers.yaml")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Printers.File == "" {
		t.Error("defaultConfig should have non-empty Printers.File")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.Printers.IntentBuffer != 64 {
		t.Errorf("defaultConfig Printers.IntentBuffer = %d, want 64", cfg.Printers.IntentBuffer)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate, got %v", err)
	}
}
