package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for ddcwatch.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Watch     WatchConfig     `yaml:"watch"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// WatchConfig contains display watch engine settings.
type WatchConfig struct {
	// Mode selects the change notification source: "poll", "udev",
	// "session", or "dynamic". Dynamic picks the best source available
	// at startup: udev, then session, then poll.
	Mode string `yaml:"mode"`

	// PollIntervalMS is the base loop interval in milliseconds. Each
	// sleep is split into short slices so shutdown is never delayed by
	// a full interval.
	PollIntervalMS int `yaml:"poll_interval_ms"`

	// ExtraStabilizationMS is the additional settle time applied before
	// sampling when a connector disappears. DRM briefly reports a
	// disconnect during some DP link retrains; waiting avoids acting on
	// the false transition.
	ExtraStabilizationMS int `yaml:"extra_stabilization_ms"`

	// StabilizationPollMS is the interval between stabilization samples.
	StabilizationPollMS int `yaml:"stabilization_poll_ms"`

	// MaxStabilizationSamples caps the stabilization loop. When two
	// consecutive samples still disagree after this many, the last
	// sample wins and a warning is logged. 0 means no cap.
	MaxStabilizationSamples int `yaml:"max_stabilization_samples"`

	// StabilizeOnAdd applies the extra settle time to additions too.
	StabilizeOnAdd bool `yaml:"stabilize_on_add"`

	// PhantomDetection enables resolving duplicate refs left behind by
	// monitors that move between connectors.
	PhantomDetection bool `yaml:"phantom_detection"`

	// RecheckIntervalMS is the base interval of the deferred DDC
	// recheck; round n waits base * 2^n.
	RecheckIntervalMS int `yaml:"recheck_interval_ms"`

	// WatchDPMS samples per-connector power state each iteration and
	// emits asleep/awake events.
	WatchDPMS bool `yaml:"watch_dpms"`

	// SysfsRoot overrides the sysfs mount point. Tests point this at a
	// fixture tree.
	SysfsRoot string `yaml:"sysfs_root"`

	// DevRoot overrides the device node directory ("/dev").
	DevRoot string `yaml:"dev_root"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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
// Environment variables follow the pattern: DDCWATCH_SECTION_KEY
// For example: DDCWATCH_DATABASE_PATH, DDCWATCH_WATCH_MODE
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

// Default returns the built-in configuration, used when no config file
// is given on the command line.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Watch: WatchConfig{
			Mode:                    "dynamic",
			PollIntervalMS:          2000,
			ExtraStabilizationMS:    1000,
			StabilizationPollMS:     500,
			MaxStabilizationSamples: 10,
			PhantomDetection:        true,
			RecheckIntervalMS:       2000,
			WatchDPMS:               true,
			SysfsRoot:               "/sys",
			DevRoot:                 "/dev",
		},
		Database: DatabaseConfig{
			Path:        "./data/ddcwatch.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ddcwatch",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8485,
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DDCWATCH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DDCWATCH_WATCH_MODE"); v != "" {
		cfg.Watch.Mode = v
	}
	if v := os.Getenv("DDCWATCH_WATCH_SYSFS_ROOT"); v != "" {
		cfg.Watch.SysfsRoot = v
	}

	if v := os.Getenv("DDCWATCH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("DDCWATCH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DDCWATCH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DDCWATCH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("DDCWATCH_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("DDCWATCH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// validWatchModes lists the accepted watch.mode values.
var validWatchModes = map[string]bool{
	"poll":    true,
	"udev":    true,
	"session": true,
	"dynamic": true,
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if !validWatchModes[c.Watch.Mode] {
		errs = append(errs, "watch.mode must be one of poll, udev, session, dynamic")
	}
	if c.Watch.PollIntervalMS < 100 {
		errs = append(errs, "watch.poll_interval_ms must be at least 100")
	}
	if c.Watch.StabilizationPollMS < 1 {
		errs = append(errs, "watch.stabilization_poll_ms must be positive")
	}
	if c.Watch.ExtraStabilizationMS < 0 {
		errs = append(errs, "watch.extra_stabilization_ms must not be negative")
	}
	if c.Watch.MaxStabilizationSamples < 0 {
		errs = append(errs, "watch.max_stabilization_samples must not be negative")
	}
	if c.Watch.RecheckIntervalMS < 1 {
		errs = append(errs, "watch.recheck_interval_ms must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set DDCWATCH_INFLUXDB_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PollInterval returns the watch loop base interval as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watch.PollIntervalMS) * time.Millisecond
}

// ExtraStabilization returns the removal settle time as a Duration.
func (c *Config) ExtraStabilization() time.Duration {
	return time.Duration(c.Watch.ExtraStabilizationMS) * time.Millisecond
}

// StabilizationPoll returns the stabilization sample interval as a Duration.
func (c *Config) StabilizationPoll() time.Duration {
	return time.Duration(c.Watch.StabilizationPollMS) * time.Millisecond
}

// RecheckInterval returns the recheck base interval as a Duration.
func (c *Config) RecheckInterval() time.Duration {
	return time.Duration(c.Watch.RecheckIntervalMS) * time.Millisecond
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
