package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the BESTIN bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Bus      BusConfig      `yaml:"bus"`
	Engine   EngineConfig   `yaml:"engine"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BridgeConfig contains installation-specific information.
type BridgeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// BusConfig contains the wallpad bus connection settings.
type BusConfig struct {
	// Address is a serial device path ("/dev/ttyUSB0") or a TCP endpoint
	// of a serial converter ("192.168.0.27:8899").
	Address string `yaml:"address"`

	// BaudRate for serial connections. The wallpad bus runs 9600 8N1
	// except dialect-3 installations (38400).
	BaudRate int `yaml:"baud_rate"`

	// DialTimeout bounds TCP connection attempts (seconds).
	DialTimeout int `yaml:"dial_timeout"`

	// ReconnectMaxDelay caps the reconnect backoff (seconds).
	ReconnectMaxDelay int `yaml:"reconnect_max_delay"`
}

// EngineConfig contains protocol engine tuning.
type EngineConfig struct {
	// RetryLimit is the transmission ceiling per command.
	RetryLimit int `yaml:"retry_limit"`

	// ReadSize is the per-poll read buffer size in bytes.
	ReadSize int `yaml:"read_size"`

	// PollIntervalMs spaces receive polls while traffic flows.
	PollIntervalMs int `yaml:"poll_interval_ms"`

	// IdleIntervalMs spaces polls while the bus is down or idle.
	IdleIntervalMs int `yaml:"idle_interval_ms"`

	// TxGapMs is the quiet period before each transmission.
	TxGapMs int `yaml:"tx_gap_ms"`
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for energy
// telemetry history.
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
// Environment variables follow the pattern: BESTIN_SECTION_KEY
// For example: BESTIN_BUS_ADDRESS, BESTIN_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:   "bestin-001",
			Name: "BESTIN Bridge",
		},
		Bus: BusConfig{
			BaudRate:          9600,
			DialTimeout:       5,
			ReconnectMaxDelay: 60,
		},
		Engine: EngineConfig{
			RetryLimit:     10,
			ReadSize:       1024,
			PollIntervalMs: 20,
			IdleIntervalMs: 100,
			TxGapMs:        20,
		},
		Database: DatabaseConfig{
			Path:        "./data/bestin.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "bestin-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BESTIN_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Bus
	if v := os.Getenv("BESTIN_BUS_ADDRESS"); v != "" {
		cfg.Bus.Address = v
	}
	if v := os.Getenv("BESTIN_BUS_BAUD_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bus.BaudRate = n
		}
	}

	// Database
	if v := os.Getenv("BESTIN_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("BESTIN_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("BESTIN_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BESTIN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("BESTIN_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	if c.Bus.Address == "" {
		errs = append(errs, "bus.address is required (set BESTIN_BUS_ADDRESS environment variable)")
	}
	if c.Bus.BaudRate <= 0 {
		errs = append(errs, "bus.baud_rate must be positive")
	}

	if c.Engine.RetryLimit < 1 {
		errs = append(errs, "engine.retry_limit must be at least 1")
	}
	if c.Engine.ReadSize < 64 {
		errs = append(errs, "engine.read_size must be at least 64 bytes")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set BESTIN_INFLUXDB_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PollInterval returns the engine poll interval as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalMs) * time.Millisecond
}

// IdleInterval returns the engine idle interval as a Duration.
func (c *Config) IdleInterval() time.Duration {
	return time.Duration(c.Engine.IdleIntervalMs) * time.Millisecond
}

// TxGap returns the transmission quiet gap as a Duration.
func (c *Config) TxGap() time.Duration {
	return time.Duration(c.Engine.TxGapMs) * time.Millisecond
}

// DialTimeout returns the bus dial timeout as a Duration.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Bus.DialTimeout) * time.Second
}

// ReconnectMaxDelay returns the bus reconnect backoff cap as a Duration.
func (c *Config) ReconnectMaxDelay() time.Duration {
	return time.Duration(c.Bus.ReconnectMaxDelay) * time.Second
}
