package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Liminal Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
// It is immutable once Load returns.
type Config struct {
	Device    DeviceConfig     `yaml:"device"`
	MQTT      MQTTConfig       `yaml:"mqtt"`
	Link      LinkConfig       `yaml:"link"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`
	HAL       HALConfig        `yaml:"hal"`
	Actuators []ActuatorConfig `yaml:"actuators"`
	Sensors   []SensorConfig   `yaml:"sensors"`
	InfluxDB  InfluxDBConfig   `yaml:"influxdb"`
	Journal   JournalConfig    `yaml:"journal"`
	API       APIConfig        `yaml:"api"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// DeviceConfig identifies this controller on the message bus.
type DeviceConfig struct {
	ID              string `yaml:"id"`
	FirmwareVersion string `yaml:"firmware_version"`
	TopicRoot       string `yaml:"topic_root"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive time.Duration       `yaml:"keepalive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// ConnectCooldown is the minimum spacing between connection attempts
	// made by the control loop while the transport is down.
	ConnectCooldown time.Duration `yaml:"connect_cooldown"`

	Embedded EmbeddedBrokerConfig `yaml:"embedded_broker"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	TLS            bool   `yaml:"tls"`
	ClientIDPrefix string `yaml:"client_id_prefix"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// EmbeddedBrokerConfig runs an in-process broker, for bench setups with no
// Mosquitto available.
type EmbeddedBrokerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LinkConfig contains network link monitoring settings.
type LinkConfig struct {
	// Interface is the network interface to watch, e.g. wlan0. Empty
	// selects the first non-loopback interface that is up.
	Interface         string        `yaml:"interface"`
	ReconnectCooldown time.Duration `yaml:"reconnect_cooldown"`

	// ProbeHost, when set, is pinged once per cooldown to confirm the
	// link actually routes traffic.
	ProbeHost    string        `yaml:"probe_host"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// ReconnectCommand, when set, is run while the link is down, at most
	// once per cooldown. An "{interface}" argument is replaced with the
	// interface name, e.g. [nmcli, device, connect, "{interface}"].
	ReconnectCommand []string      `yaml:"reconnect_command"`
	ReconnectTimeout time.Duration `yaml:"reconnect_timeout"`
}

// SchedulerConfig controls the cadence of the control loop.
type SchedulerConfig struct {
	TickInterval          time.Duration `yaml:"tick_interval"`
	SensorPublishInterval time.Duration `yaml:"sensor_publish_interval"`
	StatusReportInterval  time.Duration `yaml:"status_report_interval"`
	MaxMessagesPerTick    int           `yaml:"max_messages_per_tick"`
	InboxSize             int           `yaml:"inbox_size"`
}

// HALConfig selects the hardware backend.
type HALConfig struct {
	// Backend is "sim" (in-memory pins and bus) or "linux".
	Backend  string `yaml:"backend"`
	GPIOChip string `yaml:"gpio_chip"`
	// I2CBus names the I2C bus; empty selects the first available bus.
	I2CBus string `yaml:"i2c_bus"`
}

// ActuatorConfig declares one actuator peripheral.
type ActuatorConfig struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Pin       int    `yaml:"pin"`
	ActiveLow bool   `yaml:"active_low"`
	// PWM forces variable-intensity support on or off. Nil derives it from the pin.
	PWM *bool `yaml:"pwm,omitempty"`
}

// SensorConfig declares one sensor peripheral.
type SensorConfig struct {
	Name     string        `yaml:"name"`
	Kind     string        `yaml:"kind"`
	Address  uint16        `yaml:"address"`
	Interval time.Duration `yaml:"interval"`
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

// JournalConfig contains the command journal database settings.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains diagnostics HTTP server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Actuator kinds accepted in configuration.
const (
	ActuatorKindOutput = "output"
	ActuatorKindRelay  = "relay"
	ActuatorKindBuzzer = "buzzer"
)

// Sensor kinds accepted in configuration.
const (
	SensorKindOrientation = "orientation"
)

// placeholderBrokerHosts are broker hosts shipped in example configs.
var placeholderBrokerHosts = map[string]bool{
	"":              true,
	"192.168.1.100": true,
	"YOUR_BROKER":   true,
}

// ErrBrokerNotConfigured is returned by MQTTConfig.Configured when the broker
// address is missing or still a placeholder.
var ErrBrokerNotConfigured = errors.New("config: mqtt broker not configured")

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LIMINAL_SECTION_KEY
// For example: LIMINAL_DEVICE_ID, LIMINAL_MQTT_HOST
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

// Default returns the built-in configuration: one status LED on the board's
// built-in pin, one orientation sensor, simulated hardware.
func Default() *Config {
	cfg := defaultConfig()
	cfg.Actuators = []ActuatorConfig{
		{Name: "status_led", Kind: ActuatorKindOutput, Pin: 2},
	}
	cfg.Sensors = []SensorConfig{
		{Name: "main_imu", Kind: SensorKindOrientation, Address: 0x68, Interval: time.Second},
	}
	return cfg
}

// defaultConfig returns a Config with sensible defaults and no peripherals.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:              "esp32-001",
			FirmwareVersion: "1.0.0",
			TopicRoot:       "liminal",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:           "localhost",
				Port:           1883,
				ClientIDPrefix: "liminal-",
			},
			QoS:       1,
			KeepAlive: 15 * time.Second,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: time.Second,
				MaxDelay:     time.Minute,
			},
			ConnectCooldown: 5 * time.Second,
			Embedded: EmbeddedBrokerConfig{
				Address: "127.0.0.1:1883",
			},
		},
		Link: LinkConfig{
			ReconnectCooldown: 30 * time.Second,
			ProbeTimeout:      2 * time.Second,
			ReconnectTimeout:  20 * time.Second,
		},
		Scheduler: SchedulerConfig{
			TickInterval:          50 * time.Millisecond,
			SensorPublishInterval: time.Second,
			StatusReportInterval:  30 * time.Second,
			MaxMessagesPerTick:    16,
			InboxSize:             64,
		},
		HAL: HALConfig{
			Backend:  "sim",
			GPIOChip: "gpiochip0",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Journal: JournalConfig{
			Path:        "./data/journal.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LIMINAL_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	if v := os.Getenv("LIMINAL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LIMINAL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LIMINAL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("LIMINAL_HAL_BACKEND"); v != "" {
		cfg.HAL.Backend = v
	}

	if v := os.Getenv("LIMINAL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("LIMINAL_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	if v := os.Getenv("LIMINAL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// An unconfigured broker is deliberately not a validation error: it only
// disables the transport, see MQTTConfig.Configured.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}
	if c.Device.TopicRoot == "" || strings.ContainsAny(c.Device.TopicRoot, "+#") {
		errs = append(errs, "device.topic_root must be non-empty and free of wildcards")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Link.ReconnectCooldown <= 0 {
		errs = append(errs, "link.reconnect_cooldown must be positive")
	}
	if c.Link.ProbeHost != "" && c.Link.ProbeTimeout <= 0 {
		errs = append(errs, "link.probe_timeout must be positive when link.probe_host is set")
	}
	if len(c.Link.ReconnectCommand) > 0 {
		if c.Link.ReconnectCommand[0] == "" {
			errs = append(errs, "link.reconnect_command must name a program")
		}
		if c.Link.ReconnectTimeout <= 0 {
			errs = append(errs, "link.reconnect_timeout must be positive when link.reconnect_command is set")
		}
	}

	if c.Scheduler.TickInterval <= 0 {
		errs = append(errs, "scheduler.tick_interval must be positive")
	}
	if c.Scheduler.SensorPublishInterval <= 0 {
		errs = append(errs, "scheduler.sensor_publish_interval must be positive")
	}
	if c.Scheduler.StatusReportInterval <= 0 {
		errs = append(errs, "scheduler.status_report_interval must be positive")
	}
	if c.Scheduler.MaxMessagesPerTick < 1 {
		errs = append(errs, "scheduler.max_messages_per_tick must be at least 1")
	}

	switch c.HAL.Backend {
	case "sim", "linux":
	default:
		errs = append(errs, fmt.Sprintf("hal.backend %q must be sim or linux", c.HAL.Backend))
	}

	names := make(map[string]bool)
	for i, a := range c.Actuators {
		if a.Name == "" {
			errs = append(errs, fmt.Sprintf("actuators[%d].name is required", i))
		} else if names[a.Name] {
			errs = append(errs, fmt.Sprintf("actuators[%d].name %q is duplicated", i, a.Name))
		}
		names[a.Name] = true

		switch a.Kind {
		case ActuatorKindOutput, ActuatorKindRelay, ActuatorKindBuzzer:
		default:
			errs = append(errs, fmt.Sprintf("actuators[%d].kind %q is not supported", i, a.Kind))
		}
		if a.Pin < 0 {
			errs = append(errs, fmt.Sprintf("actuators[%d].pin must not be negative", i))
		}
	}

	names = make(map[string]bool)
	for i, s := range c.Sensors {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("sensors[%d].name is required", i))
		} else if names[s.Name] {
			errs = append(errs, fmt.Sprintf("sensors[%d].name %q is duplicated", i, s.Name))
		}
		names[s.Name] = true

		if s.Kind != SensorKindOrientation {
			errs = append(errs, fmt.Sprintf("sensors[%d].kind %q is not supported", i, s.Kind))
		}
		if s.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("sensors[%d].interval must be positive", i))
		}
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Configured reports whether the broker address is usable.
// Returns ErrBrokerNotConfigured for a missing or placeholder host.
func (m MQTTConfig) Configured() error {
	if m.Embedded.Enabled {
		return nil
	}
	if placeholderBrokerHosts[m.Broker.Host] || m.Broker.Port < 1 || m.Broker.Port > 65535 {
		return ErrBrokerNotConfigured
	}
	return nil
}

// CommandRoot returns the topic prefix under which commands for this device arrive.
//
// Example: liminal/commands/esp32-001
func (d DeviceConfig) CommandRoot() string {
	return d.TopicRoot + "/commands/" + d.ID
}
