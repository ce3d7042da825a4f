package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
device:
  host: "radio.local"
  port: 5000
  poll_interval: 2
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
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

	if cfg.Device.Host != "radio.local" {
		t.Errorf("Device.Host = %q, want %q", cfg.Device.Host, "radio.local")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	// Defaults must survive a partial file
	if cfg.Broadcast.BufferCap != 1000 {
		t.Errorf("Broadcast.BufferCap = %d, want 1000", cfg.Broadcast.BufferCap)
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
device:
  host: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty device.host, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	// validJWTSecret is a secret that meets the 32-character minimum requirement
	validJWTSecret := "test-secret-key-at-least-32-chars!"

	valid := func() *Config {
		return &Config{
			Device: DeviceConfig{
				Host:         "localhost",
				Port:         5000,
				PollInterval: 2,
			},
			Database: DatabaseConfig{Path: "/data/meshboard.db"},
			Broadcast: BroadcastConfig{
				DebounceWindow: 1000,
				BufferCap:      1000,
				BatchSize:      100,
			},
			API:      APIConfig{Port: 8080},
			Security: SecurityConfig{JWT: JWTConfig{Secret: validJWTSecret}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing device host",
			mutate:  func(c *Config) { c.Device.Host = "" },
			wantErr: true,
		},
		{
			name:    "device port out of range",
			mutate:  func(c *Config) { c.Device.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "poll interval below one second",
			mutate:  func(c *Config) { c.Device.PollInterval = 0 },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "batch size above buffer cap",
			mutate:  func(c *Config) { c.Broadcast.BatchSize = 2000 },
			wantErr: true,
		},
		{
			name:    "invalid api port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name: "invalid mqtt qos when enabled",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
				c.MQTT.TopicPrefix = "meshboard"
			},
			wantErr: true,
		},
		{
			name: "invalid mqtt qos ignored when disabled",
			mutate: func(c *Config) {
				c.MQTT.Enabled = false
				c.MQTT.QoS = 3
			},
			wantErr: false,
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
			name:    "missing JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: true,
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: true,
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

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		Device: DeviceConfig{
			ConnectTimeout: 10,
			CommandTimeout: 3,
			PollInterval:   2,
		},
		Database:  DatabaseConfig{MergeInterval: 60},
		Broadcast: BroadcastConfig{DebounceWindow: 1000},
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.Device.PollIntervalDuration().Seconds(); got != 2 {
		t.Errorf("PollIntervalDuration() = %v, want 2", got)
	}

	if got := cfg.Device.CommandTimeoutDuration().Seconds(); got != 3 {
		t.Errorf("CommandTimeoutDuration() = %v, want 3", got)
	}

	if got := cfg.Database.MergeIntervalDuration().Seconds(); got != 60 {
		t.Errorf("MergeIntervalDuration() = %v, want 60", got)
	}

	if got := cfg.Broadcast.DebounceWindowDuration().Milliseconds(); got != 1000 {
		t.Errorf("DebounceWindowDuration() = %v ms, want 1000", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("MESHBOARD_DEVICE_HOST", "10.0.0.42")
	t.Setenv("MESHBOARD_DATABASE_PATH", "/custom/path.db")
	t.Setenv("MESHBOARD_API_HOST", "192.168.1.1")
	t.Setenv("MESHBOARD_MQTT_HOST", "mqtt.example.com")
	t.Setenv("MESHBOARD_MQTT_USERNAME", "testuser")
	t.Setenv("MESHBOARD_MQTT_PASSWORD", "testpass")
	t.Setenv("MESHBOARD_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("MESHBOARD_JWT_SECRET", "jwt-secret")
	t.Setenv("MESHBOARD_ADMIN_PASSWORD_HASH", "$argon2id$stub")

	applyEnvOverrides(cfg)

	if cfg.Device.Host != "10.0.0.42" {
		t.Errorf("Device.Host = %q, want %q", cfg.Device.Host, "10.0.0.42")
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
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

	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}

	if cfg.Security.Admin.PasswordHash != "$argon2id$stub" {
		t.Errorf("Security.Admin.PasswordHash = %q, want %q", cfg.Security.Admin.PasswordHash, "$argon2id$stub")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Device.Host == "" {
		t.Error("defaultConfig should have non-empty Device.Host")
	}

	if cfg.Device.PollInterval != 2 {
		t.Errorf("defaultConfig Device.PollInterval = %d, want 2", cfg.Device.PollInterval)
	}

	if cfg.Device.DrainMax != 200 {
		t.Errorf("defaultConfig Device.DrainMax = %d, want 200", cfg.Device.DrainMax)
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.Broadcast.DebounceWindow != 1000 {
		t.Errorf("defaultConfig Broadcast.DebounceWindow = %d, want 1000", cfg.Broadcast.DebounceWindow)
	}

	if cfg.Broadcast.BatchSize != 100 {
		t.Errorf("defaultConfig Broadcast.BatchSize = %d, want 100", cfg.Broadcast.BatchSize)
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}

	if cfg.WebSocket.PingInterval != 30 {
		t.Errorf("defaultConfig WebSocket.PingInterval = %d, want 30", cfg.WebSocket.PingInterval)
	}
}
