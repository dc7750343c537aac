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
instrument:
  id: "scope-lab-2"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
deck:
  layout_file: "configs/deck.yaml"
  translate_units: "mm2um"
stage:
  park: {x: 0, y: 0, z: 0}
  move_delay: 5ms
camera:
  channels: ["BF", "GFP"]
acquisition:
  output: "fs"
  output_dir: "/tmp/frames"
  format: "png"
  unshake: 150ms
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Instrument.ID != "scope-lab-2" {
		t.Errorf("Instrument.ID = %q, want %q", cfg.Instrument.ID, "scope-lab-2")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Deck.LayoutFile != "configs/deck.yaml" {
		t.Errorf("Deck.LayoutFile = %q", cfg.Deck.LayoutFile)
	}
	if cfg.Stage.MoveDelay != 5*time.Millisecond {
		t.Errorf("Stage.MoveDelay = %v, want 5ms", cfg.Stage.MoveDelay)
	}
	if len(cfg.Camera.Channels) != 2 || cfg.Camera.Channels[1] != "GFP" {
		t.Errorf("Camera.Channels = %v", cfg.Camera.Channels)
	}
	if cfg.Acquisition.Unshake != 150*time.Millisecond || cfg.Acquisition.Format != "png" {
		t.Errorf("Acquisition = %+v", cfg.Acquisition)
	}
	// Untouched sections keep their defaults.
	if cfg.Camera.Width != 640 || cfg.Autofocus.Score != "laplacian" {
		t.Errorf("defaults lost: camera %+v autofocus %+v", cfg.Camera, cfg.Autofocus)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, `
instrument:
  id: ""
deck:
  layout_file: "deck.yaml"
`))
	if err == nil {
		t.Error("Load() expected validation error for empty instrument.id, got nil")
	}
}

// validConfig returns a configuration that passes Validate.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Deck.LayoutFile = "deck.yaml"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing instrument ID", mutate: func(c *Config) { c.Instrument.ID = "" }, wantErr: "instrument.id"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "missing layout", mutate: func(c *Config) { c.Deck.LayoutFile = "" }, wantErr: "deck.layout_file"},
		{name: "bad units", mutate: func(c *Config) { c.Deck.TranslateUnits = "in2mm" }, wantErr: "translate_units"},
		{name: "unknown stage driver", mutate: func(c *Config) { c.Stage.Driver = "grbl" }, wantErr: "stage.driver"},
		{name: "no channels", mutate: func(c *Config) { c.Camera.Channels = nil }, wantErr: "camera.channels"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Acquisition.Output = "s3" }, wantErr: "s3.bucket"},
		{name: "bad format", mutate: func(c *Config) { c.Acquisition.Format = "jpeg" }, wantErr: "acquisition.format"},
		{name: "log file missing", mutate: func(c *Config) { c.Logging.Output = "both" }, wantErr: "logging.file.path"},
		{name: "bad score", mutate: func(c *Config) { c.Autofocus.Score = "entropy" }, wantErr: "autofocus.score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsEveryError(t *testing.T) {
	cfg := validConfig()
	cfg.Instrument.ID = ""
	cfg.API.Port = 0
	cfg.Acquisition.Format = "bmp"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, want := range []string{"instrument.id", "api.port", "acquisition.format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %q, missing %q", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
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
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("DECKSCAN_INSTRUMENT_ID", "scope-env")
	t.Setenv("DECKSCAN_DATABASE_PATH", "/custom/path.db")
	t.Setenv("DECKSCAN_MQTT_HOST", "mqtt.example.com")
	t.Setenv("DECKSCAN_MQTT_USERNAME", "testuser")
	t.Setenv("DECKSCAN_MQTT_PASSWORD", "testpass")
	t.Setenv("DECKSCAN_API_HOST", "192.168.1.1")
	t.Setenv("DECKSCAN_API_PORT", "9090")
	t.Setenv("DECKSCAN_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("DECKSCAN_DECK_LAYOUT_FILE", "/etc/deckscan/deck.yaml")
	t.Setenv("DECKSCAN_S3_SECRET_ACCESS_KEY", "s3-secret")

	applyEnvOverrides(cfg)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Instrument.ID", cfg.Instrument.ID, "scope-env"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"API.Port", cfg.API.Port, 9090},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Deck.LayoutFile", cfg.Deck.LayoutFile, "/etc/deckscan/deck.yaml"},
		{"Acquisition.S3.SecretAccessKey", cfg.Acquisition.S3.SecretAccessKey, "s3-secret"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Instrument.ID == "" {
		t.Error("defaultConfig should have non-empty Instrument.ID")
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}

	if cfg.Acquisition.Unshake != 200*time.Millisecond {
		t.Errorf("defaultConfig Acquisition.Unshake = %v, want 200ms", cfg.Acquisition.Unshake)
	}

	// Only the layout is missing from the defaults.
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "deck.layout_file") {
		t.Fatalf("defaultConfig Validate() = %v", err)
	}
	if strings.Count(err.Error(), ";") != 0 {
		t.Errorf("defaultConfig has more than one problem: %v", err)
	}
}
