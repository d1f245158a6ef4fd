// Package config loads the poller configuration from a YAML file.
//
// Loading order:
//  1. Default values
//  2. YAML file values
//  3. PLCLINK_* environment variables
//
// The file path itself can be overridden with PLCLINK_CONFIG.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-plclink/driver"
	"github.com/arloliu/go-plclink/link"
	"github.com/arloliu/go-plclink/modbus"
	"github.com/arloliu/go-plclink/point"
)

// Environment variables read by Load.
const (
	EnvConfigPath   = "PLCLINK_CONFIG"
	EnvLogLevel     = "PLCLINK_LOG_LEVEL"
	EnvMQTTBroker   = "PLCLINK_MQTT_BROKER"
	EnvMQTTPassword = "PLCLINK_MQTT_PASSWORD"
	EnvInfluxURL    = "PLCLINK_INFLUXDB_URL"
	EnvInfluxToken  = "PLCLINK_INFLUXDB_TOKEN"
)

// Protocols a device can speak.
const (
	ProtocolFxLink = "fxlink"
	ProtocolModbus = "modbus"
)

// Defaults.
const (
	DefaultPath          = "plcpoll.yaml"
	DefaultInterval      = 5 * time.Second
	DefaultMQTTClientID  = "plcpoll"
	DefaultTopicPrefix   = "plclink"
	DefaultMeasurement   = "plc"
	DefaultFlushInterval = time.Second
	DefaultBatchSize     = 100

	MinInterval = 100 * time.Millisecond
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the root of the poller configuration.
type Config struct {
	// Interval is the poll period.
	Interval time.Duration  `yaml:"interval"`
	Logging  LoggingConfig  `yaml:"logging"`
	Trace    TraceConfig    `yaml:"trace"`
	Devices  []DeviceConfig `yaml:"devices"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// TraceConfig enables the CBOR capture of every round trip.
type TraceConfig struct {
	// File is the capture path. Empty disables tracing.
	File string `yaml:"file"`
}

// DeviceConfig describes one polled controller.
type DeviceConfig struct {
	Name     string `yaml:"name"`
	Protocol string `yaml:"protocol"`
	// Mode is "rtu" or "tcp", Modbus only.
	Mode     string            `yaml:"mode"`
	Network  string            `yaml:"network"`
	Endpoint string            `yaml:"endpoint"`
	Serial   link.SerialConfig `yaml:"serial"`
	Station  int               `yaml:"station"`
	Timeout  time.Duration     `yaml:"timeout"`

	Step      int           `yaml:"step"`
	BatchSize int           `yaml:"batchSize"`
	Delay     time.Duration `yaml:"delay"`

	// ReadFunction and WriteFunction name Modbus functions, e.g.
	// "ReadRegister" or "3".
	ReadFunction  string `yaml:"readFunction"`
	WriteFunction string `yaml:"writeFunction"`
	ProtocolID    uint16 `yaml:"protocolId"`

	Points []point.Point `yaml:"points"`
}

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	Enabled bool `yaml:"enabled"`
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"clientId"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	TopicPrefix string        `yaml:"topicPrefix"`
	QoS         byte          `yaml:"qos"`
	Retain      bool          `yaml:"retain"`
	Timeout     time.Duration `yaml:"timeout"`
}

// InfluxDBConfig configures the InfluxDB publisher.
type InfluxDBConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Org           string        `yaml:"org"`
	Bucket        string        `yaml:"bucket"`
	Measurement   string        `yaml:"measurement"`
	BatchSize     uint          `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// Path returns the configuration path: PLCLINK_CONFIG when set, otherwise
// fallback, otherwise DefaultPath.
func Path(fallback string) string {
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	if fallback != "" {
		return fallback
	}

	return DefaultPath
}

// Load reads, overrides and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes YAML data into a validated configuration.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration holding only default values.
func Default() *Config {
	return &Config{
		Interval: DefaultInterval,
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		MQTT: MQTTConfig{
			ClientID:    DefaultMQTTClientID,
			TopicPrefix: DefaultTopicPrefix,
			QoS:         1,
			Timeout:     5 * time.Second,
		},
		InfluxDB: InfluxDBConfig{
			Measurement:   DefaultMeasurement,
			BatchSize:     DefaultBatchSize,
			FlushInterval: DefaultFlushInterval,
		},
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvMQTTBroker); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv(EnvMQTTPassword); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv(EnvInfluxURL); v != "" {
		c.InfluxDB.URL = v
	}
	if v := os.Getenv(EnvInfluxToken); v != "" {
		c.InfluxDB.Token = v
	}
}

func (c *Config) applyDefaults() {
	for i := range c.Devices {
		d := &c.Devices[i]
		d.Protocol = strings.ToLower(strings.TrimSpace(d.Protocol))
		if d.Protocol == "" {
			d.Protocol = ProtocolFxLink
		}
		if d.Name == "" {
			d.Name = d.Endpoint
		}
	}
}

// Validate checks the configuration. Every error wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Interval < MinInterval {
		return fmt.Errorf("%w: interval %v below %v", ErrInvalidConfig, c.Interval, MinInterval)
	}
	if len(c.Devices) == 0 {
		return fmt.Errorf("%w: no devices", ErrInvalidConfig)
	}

	names := make(map[string]bool, len(c.Devices))
	for _, d := range c.Devices {
		if names[d.Name] {
			return fmt.Errorf("%w: duplicate device %q", ErrInvalidConfig, d.Name)
		}
		names[d.Name] = true

		if err := d.validate(); err != nil {
			return fmt.Errorf("%w: device %q: %w", ErrInvalidConfig, d.Name, err)
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("%w: mqtt.broker is required", ErrInvalidConfig)
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("%w: mqtt.qos %d out of range [0, 2]", ErrInvalidConfig, c.MQTT.QoS)
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			return fmt.Errorf("%w: influxdb url, org and bucket are required", ErrInvalidConfig)
		}
	}

	return nil
}

func (d DeviceConfig) validate() error {
	if d.Protocol != ProtocolFxLink && d.Protocol != ProtocolModbus {
		return fmt.Errorf("unknown protocol %q", d.Protocol)
	}
	if strings.TrimSpace(d.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if d.Station < 0 || d.Station > 255 {
		return fmt.Errorf("station %d out of range [0, 255]", d.Station)
	}
	if len(d.Points) == 0 {
		return errors.New("no points")
	}

	seen := make(map[string]bool, len(d.Points))
	for _, p := range d.Points {
		if p.Name == "" {
			return fmt.Errorf("point %q has no name", p.Address)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate point %q", p.Name)
		}
		seen[p.Name] = true
	}

	_, err := d.Params()

	return err
}

// Params converts the device section into driver parameters.
func (d DeviceConfig) Params() (driver.Params, error) {
	p := driver.Params{
		Network:    d.Network,
		Endpoint:   d.Endpoint,
		Serial:     d.Serial,
		Station:    byte(d.Station), //nolint:gosec // validated range
		Timeout:    d.Timeout,
		Step:       d.Step,
		BatchSize:  d.BatchSize,
		Delay:      d.Delay,
		ProtocolID: d.ProtocolID,
	}

	if d.Protocol != ProtocolModbus {
		return p, nil
	}

	mode, err := modbus.ParseMode(d.Mode)
	if err != nil {
		return p, err
	}
	p.Mode = mode

	if d.ReadFunction != "" {
		if p.ReadFunction, err = modbus.ParseFunction(d.ReadFunction); err != nil {
			return p, err
		}
	}
	if d.WriteFunction != "" {
		if p.WriteFunction, err = modbus.ParseFunction(d.WriteFunction); err != nil {
			return p, err
		}
	}

	return p, nil
}
