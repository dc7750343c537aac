package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of configs/config.yaml.
type Config struct {
	Instrument  InstrumentConfig  `yaml:"instrument"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Deck        DeckConfig        `yaml:"deck"`
	Stage       StageConfig       `yaml:"stage"`
	Camera      CameraConfig      `yaml:"camera"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Autofocus   AutofocusConfig   `yaml:"autofocus"`
}

// InstrumentConfig identifies the microscope.
type InstrumentConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"` // stdout, stderr, file, both
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// DeckConfig points at the deck layout.
type DeckConfig struct {
	LayoutFile string `yaml:"layout_file"`

	// TranslateUnits converts layout units to stage units: "mm2um", "um2mm" or "".
	TranslateUnits string `yaml:"translate_units"`
}

// PointConfig is a stage position in configuration files.
type PointConfig struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// StageConfig contains motion driver settings.
type StageConfig struct {
	Driver      string        `yaml:"driver"` // simulated
	Min         PointConfig   `yaml:"min"`
	Max         PointConfig   `yaml:"max"`
	Home        PointConfig   `yaml:"home"`
	Park        PointConfig   `yaml:"park"`
	Speeds      PointConfig   `yaml:"speeds"` // stage units per second, 0 keeps the driver default
	MoveDelay   time.Duration `yaml:"move_delay"`
	MoveTimeout time.Duration `yaml:"move_timeout"`
}

// CameraConfig contains camera and illumination settings.
type CameraConfig struct {
	Driver   string   `yaml:"driver"` // simulated
	Width    int      `yaml:"width"`
	Height   int      `yaml:"height"`
	BitDepth int      `yaml:"bit_depth"`
	Channels []string `yaml:"channels"`

	// LEDMatrix drives an LED matrix from the named channel when set.
	LEDMatrix LEDMatrixConfig `yaml:"led_matrix"`
}

// LEDMatrixConfig describes an optional LED matrix illuminator.
type LEDMatrixConfig struct {
	Channel string `yaml:"channel"`
	Columns int    `yaml:"columns"`
	Rows    int    `yaml:"rows"`
}

// AcquisitionConfig controls where and how frames are stored.
type AcquisitionConfig struct {
	Output    string        `yaml:"output"` // fs, s3, both
	OutputDir string        `yaml:"output_dir"`
	Format    string        `yaml:"format"` // tiff, png
	Unshake   time.Duration `yaml:"unshake"`
	S3        S3Config      `yaml:"s3"`

	// ExperimentDir holds the experiment files the API loads and saves.
	ExperimentDir string `yaml:"experiment_dir"`
}

// S3Config contains S3-compatible object storage settings.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// AutofocusConfig contains default sweep settings.
type AutofocusConfig struct {
	ZStart float64 `yaml:"z_start"`
	ZEnd   float64 `yaml:"z_end"`
	ZStep  float64 `yaml:"z_step"`
	Score  string  `yaml:"score"` // variance, laplacian

	// Channel and Intensity light the sample during interactive sweeps.
	Channel   string  `yaml:"channel"`
	Intensity float64 `yaml:"intensity"`
}

// Load layers the YAML file at path over the built-in defaults, then
// applies DECKSCAN_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides,
// for running without a config file.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			ID:   "scope-001",
			Name: "Deck scanner",
		},
		Database: DatabaseConfig{
			Path:        "./data/deckscan.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "deckscan-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
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
		Deck: DeckConfig{
			TranslateUnits: "mm2um",
		},
		Stage: StageConfig{
			Driver:      "simulated",
			MoveTimeout: 30 * time.Second,
		},
		Camera: CameraConfig{
			Driver:   "simulated",
			Width:    640,
			Height:   480,
			BitDepth: 16,
			Channels: []string{"BF"},
		},
		Acquisition: AcquisitionConfig{
			Output:        "fs",
			OutputDir:     "./data/frames",
			Format:        "tiff",
			Unshake:       200 * time.Millisecond,
			ExperimentDir: "./experiments",
		},
		Autofocus: AutofocusConfig{
			ZStep: 10,
			Score: "laplacian",
		},
	}
}

// envOverrides maps DECKSCAN_* variables onto the fields they replace.
// Secrets belong here rather than in the YAML file.
func envOverrides(cfg *Config) map[string]*string {
	return map[string]*string{
		"DECKSCAN_INSTRUMENT_ID":              &cfg.Instrument.ID,
		"DECKSCAN_DATABASE_PATH":              &cfg.Database.Path,
		"DECKSCAN_MQTT_HOST":                  &cfg.MQTT.Broker.Host,
		"DECKSCAN_MQTT_USERNAME":              &cfg.MQTT.Auth.Username,
		"DECKSCAN_MQTT_PASSWORD":              &cfg.MQTT.Auth.Password,
		"DECKSCAN_API_HOST":                   &cfg.API.Host,
		"DECKSCAN_INFLUXDB_TOKEN":             &cfg.InfluxDB.Token,
		"DECKSCAN_DECK_LAYOUT_FILE":           &cfg.Deck.LayoutFile,
		"DECKSCAN_ACQUISITION_OUTPUT_DIR":     &cfg.Acquisition.OutputDir,
		"DECKSCAN_ACQUISITION_EXPERIMENT_DIR": &cfg.Acquisition.ExperimentDir,
		"DECKSCAN_S3_ACCESS_KEY_ID":           &cfg.Acquisition.S3.AccessKeyID,
		"DECKSCAN_S3_SECRET_ACCESS_KEY":       &cfg.Acquisition.S3.SecretAccessKey,
	}
}

// applyEnvOverrides replaces fields from non-empty DECKSCAN_* variables.
// A DECKSCAN_API_PORT that is not a number is ignored.
func applyEnvOverrides(cfg *Config) {
	for key, field := range envOverrides(cfg) {
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}
	if port, err := strconv.Atoi(os.Getenv("DECKSCAN_API_PORT")); err == nil {
		cfg.API.Port = port
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Instrument validation
	if c.Instrument.ID == "" {
		errs = append(errs, "instrument.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Logging validation
	switch c.Logging.Output {
	case "stdout", "stderr", "":
	case "file", "both":
		if c.Logging.File.Path == "" {
			errs = append(errs, "logging.file.path is required when logging.output is file or both")
		}
	default:
		errs = append(errs, "logging.output must be stdout, stderr, file, or both")
	}

	// Deck validation
	if c.Deck.LayoutFile == "" {
		errs = append(errs, "deck.layout_file is required")
	}
	switch c.Deck.TranslateUnits {
	case "", "mm2um", "um2mm":
	default:
		errs = append(errs, "deck.translate_units must be mm2um, um2mm, or empty")
	}

	// Hardware validation
	if c.Stage.Driver != "simulated" {
		errs = append(errs, fmt.Sprintf("stage.driver %q is not supported", c.Stage.Driver))
	}
	if c.Camera.Driver != "simulated" {
		errs = append(errs, fmt.Sprintf("camera.driver %q is not supported", c.Camera.Driver))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, "camera.width and camera.height must be positive")
	}
	if len(c.Camera.Channels) == 0 && c.Camera.LEDMatrix.Channel == "" {
		errs = append(errs, "camera.channels needs at least one illumination channel")
	}

	// Acquisition validation
	switch c.Acquisition.Output {
	case "fs", "both":
		if c.Acquisition.OutputDir == "" {
			errs = append(errs, "acquisition.output_dir is required for filesystem output")
		}
	case "s3":
	default:
		errs = append(errs, "acquisition.output must be fs, s3, or both")
	}
	if (c.Acquisition.Output == "s3" || c.Acquisition.Output == "both") && c.Acquisition.S3.Bucket == "" {
		errs = append(errs, "acquisition.s3.bucket is required for s3 output")
	}
	switch strings.ToLower(c.Acquisition.Format) {
	case "tif", "tiff", "png":
	default:
		errs = append(errs, "acquisition.format must be tiff or png")
	}
	if c.Acquisition.Unshake < 0 {
		errs = append(errs, "acquisition.unshake must not be negative")
	}

	// Autofocus validation
	switch c.Autofocus.Score {
	case "variance", "laplacian":
	default:
		errs = append(errs, "autofocus.score must be variance or laplacian")
	}
	if c.Autofocus.ZStep <= 0 {
		errs = append(errs, "autofocus.z_step must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
