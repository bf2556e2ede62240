package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Binding modes accepted by tracking.binding_mode.
const (
	BindingModePositional = "positional"
	BindingModeStrict     = "strict"
)

// Config is the root configuration structure for Tracker Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig identifies the installation (a stage, a booth, a studio).
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// TrackingConfig contains the slot reconciliation settings.
//
// CameraControllerSerial, DisableBaseStationRotation and
// HandleControllerAsTracker can change at runtime when WatchFile is enabled;
// the remaining fields are read once at startup.
type TrackingConfig struct {
	// CameraControllerSerial is the serial of the device that drives the
	// camera slot. Empty disables camera-controller extraction.
	CameraControllerSerial string `yaml:"camera_controller_serial"`

	// DisableBaseStationRotation keeps only yaw on base-station slots.
	// Default: true
	DisableBaseStationRotation bool `yaml:"disable_base_station_rotation"`

	// HandleControllerAsTracker is forwarded verbatim to the tracking runtime.
	HandleControllerAsTracker bool `yaml:"handle_controller_as_tracker"`

	// BindingMode is "positional" (runtime index i lands on slot i) or
	// "strict" (a serial keeps its slot while it stays visible).
	// Default: "positional"
	BindingMode string `yaml:"binding_mode"`

	// FrameRateHz is the reconciliation rate. Default: 90
	FrameRateHz int `yaml:"frame_rate_hz"`

	// SnapshotTimeoutMS bounds how long a frame waits for the runtime snapshot.
	// Default: 5
	SnapshotTimeoutMS int `yaml:"snapshot_timeout_ms"`

	// MotionThreshold is the distance a device must move from its recorded
	// baseline before a moved event fires. Default: 0.1
	MotionThreshold float64 `yaml:"motion_threshold"`

	// PersistBaselines stores motion baselines in SQLite across restarts.
	PersistBaselines bool `yaml:"persist_baselines"`

	// WatchFile reloads the runtime-mutable fields when the config file changes.
	WatchFile bool `yaml:"watch_file"`

	Slots SlotsConfig `yaml:"slots"`
}

// SlotsConfig contains the fixed slot capacity per device class.
// The HMD and camera-controller slots always have capacity 1.
type SlotsConfig struct {
	Controllers  int `yaml:"controllers"`
	Trackers     int `yaml:"trackers"`
	BaseStations int `yaml:"base_stations"`
}

// RuntimeConfig contains settings for the headset-side tracking bridge that
// publishes device snapshots over MQTT.
type RuntimeConfig struct {
	// StaleAfterMS marks the runtime disconnected when no snapshot arrived
	// within this window. Default: 500
	StaleAfterMS int `yaml:"stale_after_ms"`

	// Bridge configures optional supervision of the bridge process.
	Bridge BridgeProcessConfig `yaml:"bridge"`
}

// BridgeProcessConfig contains settings for supervising the bridge binary.
type BridgeProcessConfig struct {
	// Managed indicates whether Tracker Core should start and restart the bridge.
	// If false, the bridge is expected to run elsewhere (usually on the VR host).
	Managed bool `yaml:"managed"`

	// Binary is the path to the bridge executable.
	Binary string `yaml:"binary"`

	// Args are passed verbatim to the bridge.
	Args []string `yaml:"args"`

	// RestartDelaySeconds is the time to wait before restarting. Default: 5
	RestartDelaySeconds int `yaml:"restart_delay_seconds"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`

	// HealthCheckInterval is how often snapshot freshness is checked. Default: 10s
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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

	// PoseEveryNFrames downsamples pose telemetry. Default: 9 (10 Hz at 90 Hz)
	PoseEveryNFrames int `yaml:"pose_every_n_frames"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
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
// Environment variables follow the pattern: TRACKER_SECTION_KEY
// For example: TRACKER_DATABASE_PATH, TRACKER_MQTT_HOST
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
		Site: SiteConfig{
			ID:   "stage-001",
			Name: "Tracker Core",
		},
		Tracking: TrackingConfig{
			DisableBaseStationRotation: true,
			BindingMode:                BindingModePositional,
			FrameRateHz:                90,
			SnapshotTimeoutMS:          5,
			MotionThreshold:            0.1,
			Slots: SlotsConfig{
				Controllers:  2,
				Trackers:     8,
				BaseStations: 4,
			},
		},
		Runtime: RuntimeConfig{
			StaleAfterMS: 500,
			Bridge: BridgeProcessConfig{
				RestartDelaySeconds: 5,
				MaxRestartAttempts:  10,
				HealthCheckInterval: 10 * time.Second,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/tracker.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tracker-core",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     30,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:        500,
			FlushInterval:    1,
			PoseEveryNFrames: 9,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TRACKER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRACKER_CAMERA_CONTROLLER_SERIAL"); v != "" {
		cfg.Tracking.CameraControllerSerial = v
	}

	if v := os.Getenv("TRACKER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("TRACKER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TRACKER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TRACKER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("TRACKER_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("TRACKER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	switch c.Tracking.BindingMode {
	case BindingModePositional, BindingModeStrict:
	default:
		errs = append(errs, fmt.Sprintf("tracking.binding_mode must be %q or %q", BindingModePositional, BindingModeStrict))
	}
	if c.Tracking.FrameRateHz < 1 || c.Tracking.FrameRateHz > 1000 {
		errs = append(errs, "tracking.frame_rate_hz must be between 1 and 1000")
	}
	if c.Tracking.SnapshotTimeoutMS < 1 {
		errs = append(errs, "tracking.snapshot_timeout_ms must be positive")
	}
	if c.Tracking.MotionThreshold <= 0 {
		errs = append(errs, "tracking.motion_threshold must be positive")
	}
	if c.Tracking.Slots.Controllers < 0 || c.Tracking.Slots.Trackers < 0 || c.Tracking.Slots.BaseStations < 0 {
		errs = append(errs, "tracking.slots capacities cannot be negative")
	}
	if c.Tracking.PersistBaselines && c.Database.Path == "" {
		errs = append(errs, "database.path is required when tracking.persist_baselines is set")
	}

	if c.Runtime.StaleAfterMS < 1 {
		errs = append(errs, "runtime.stale_after_ms must be positive")
	}
	if c.Runtime.Bridge.Managed && c.Runtime.Bridge.Binary == "" {
		errs = append(errs, "runtime.bridge.binary is required when runtime.bridge.managed is set")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// FrameInterval returns the time between two reconciliation frames.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Tracking.FrameRateHz)
}

// SnapshotTimeout returns the per-frame snapshot acquisition bound.
func (c *Config) SnapshotTimeout() time.Duration {
	return time.Duration(c.Tracking.SnapshotTimeoutMS) * time.Millisecond
}

// StaleAfter returns the snapshot freshness window.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Runtime.StaleAfterMS) * time.Millisecond
}
