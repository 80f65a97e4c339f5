package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
backend:
  base_url: "http://hub.local:8000/api/"
  token: "test-token"
  timeout: 5
sync:
  poll_interval: 3s
  pending_ttl: 1500ms
  filter:
    types: ["light"]
    online_only: true
    require_room: true
    exclude_rooms: ["Sin Asignar"]
database:
  path: "/tmp/test.db"
mqtt:
  enabled: true
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  port: 9000
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.BaseURL != "http://hub.local:8000/api/" {
		t.Errorf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Sync.PollInterval != 3*time.Second {
		t.Errorf("Sync.PollInterval = %v, want 3s", cfg.Sync.PollInterval)
	}
	if cfg.Sync.PendingTTL != 1500*time.Millisecond {
		t.Errorf("Sync.PendingTTL = %v, want 1.5s", cfg.Sync.PendingTTL)
	}
	if len(cfg.Sync.Filter.ExcludeRooms) != 1 || cfg.Sync.Filter.ExcludeRooms[0] != "Sin Asignar" {
		t.Errorf("Sync.Filter.ExcludeRooms = %v", cfg.Sync.Filter.ExcludeRooms)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	// Unset sections keep their defaults
	if cfg.MQTT.TopicPrefix != "dashsync" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "dashsync")
	}
	if cfg.Backend.RoutinesPath != "nezu-routines" {
		t.Errorf("Backend.RoutinesPath = %q", cfg.Backend.RoutinesPath)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("DASHSYNC_BACKEND_TOKEN", "")
	configPath := writeConfig(t, `
backend:
  base_url: "http://hub.local/api/"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for missing token, got nil")
	}
	if !strings.Contains(err.Error(), "backend.token") {
		t.Errorf("error = %v, want mention of backend.token", err)
	}
}

func TestLoad_TokenFromEnvironment(t *testing.T) {
	t.Setenv("DASHSYNC_BACKEND_TOKEN", "env-token")
	configPath := writeConfig(t, `
backend:
  base_url: "http://hub.local/api/"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Token != "env-token" {
		t.Errorf("Backend.Token = %q, want %q", cfg.Backend.Token, "env-token")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Backend.BaseURL = "http://hub.local/api/"
		cfg.Backend.Token = "token"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing base url", mutate: func(c *Config) { c.Backend.BaseURL = "" }, wantErr: true},
		{name: "relative base url", mutate: func(c *Config) { c.Backend.BaseURL = "/api" }, wantErr: true},
		{name: "missing token", mutate: func(c *Config) { c.Backend.Token = "" }, wantErr: true},
		{name: "zero poll interval", mutate: func(c *Config) { c.Sync.PollInterval = 0 }, wantErr: true},
		{name: "negative ttl", mutate: func(c *Config) { c.Sync.PendingTTL = -time.Second }, wantErr: true},
		{name: "bad prune schedule", mutate: func(c *Config) { c.Journal.PruneSchedule = "every tuesday" }, wantErr: true},
		{name: "journal disabled ignores schedule", mutate: func(c *Config) {
			c.Journal.Enabled = false
			c.Journal.PruneSchedule = "nonsense"
		}},
		{name: "invalid QoS", mutate: func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.QoS = 3
		}, wantErr: true},
		{name: "invalid QoS ignored when mqtt disabled", mutate: func(c *Config) { c.MQTT.QoS = 3 }},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "influx without bucket", mutate: func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.URL = "http://influx:8086"
		}, wantErr: true},
		{name: "metrics path relative", mutate: func(c *Config) { c.Metrics.Path = "metrics" }, wantErr: true},
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

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Sync.PollInterval = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"backend.base_url", "backend.token", "sync.poll_interval"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		Backend: BackendConfig{Timeout: 7},
		Journal: JournalConfig{RetentionHours: 24},
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetBackendTimeout(); got != 7*time.Second {
		t.Errorf("GetBackendTimeout() = %v, want 7s", got)
	}
	if got := cfg.GetJournalRetention(); got != 24*time.Hour {
		t.Errorf("GetJournalRetention() = %v, want 24h", got)
	}
	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("DASHSYNC_BACKEND_URL", "https://backend.example.com/api/")
	t.Setenv("DASHSYNC_DATABASE_PATH", "/custom/path.db")
	t.Setenv("DASHSYNC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("DASHSYNC_MQTT_USERNAME", "testuser")
	t.Setenv("DASHSYNC_MQTT_PASSWORD", "testpass")
	t.Setenv("DASHSYNC_API_HOST", "192.168.1.1")
	t.Setenv("DASHSYNC_API_TOKEN", "api-token")
	t.Setenv("DASHSYNC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("DASHSYNC_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"Backend.BaseURL", cfg.Backend.BaseURL, "https://backend.example.com/api/"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"API.AuthToken", cfg.API.AuthToken, "api-token"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Sync.PollInterval != 2*time.Second {
		t.Errorf("default Sync.PollInterval = %v, want 2s", cfg.Sync.PollInterval)
	}
	if cfg.Sync.PendingTTL != 2*time.Second {
		t.Errorf("default Sync.PendingTTL = %v, want 2s", cfg.Sync.PendingTTL)
	}
	if !cfg.Sync.Filter.OnlineOnly || !cfg.Sync.Filter.RequireRoom {
		t.Error("default filter should require online devices with a room")
	}
	if cfg.API.Port != 8090 {
		t.Errorf("default API.Port = %d, want 8090", cfg.API.Port)
	}
	if cfg.MQTT.Enabled || cfg.InfluxDB.Enabled {
		t.Error("mqtt and influxdb should be disabled by default")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DASHSYNC_BACKEND_URL", "")
	t.Setenv("DASHSYNC_BACKEND_TOKEN", "")
	if _, err := FromEnv(); err == nil {
		t.Fatal("FromEnv() without backend settings should fail")
	}

	t.Setenv("DASHSYNC_BACKEND_URL", "http://hub.local:8000/api/")
	t.Setenv("DASHSYNC_BACKEND_TOKEN", "env-token")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.Backend.Token != "env-token" || cfg.API.Port != 8090 {
		t.Errorf("FromEnv() = %+v", cfg.Backend)
	}
}
