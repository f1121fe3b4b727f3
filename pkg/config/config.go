// Package config loads the bridge configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/majkrzak/esphome-ptm215b/pkg/advertisement"
	"github.com/majkrzak/esphome-ptm215b/pkg/ptm215b"
	"github.com/majkrzak/esphome-ptm215b/pkg/telegram"
	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding file values.
const (
	EnvLogLevel           = "PTM215B_LOG_LEVEL"
	EnvKeystorePassphrase = "PTM215B_KEYSTORE_PASSPHRASE"
	EnvMQTTBroker         = "PTM215B_MQTT_BROKER"
	EnvNATSURL            = "PTM215B_NATS_URL"
)

// Config is the bridge configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Listen   string         `yaml:"listen"`
	MDNS     MDNSConfig     `yaml:"mdns"`
	Keystore KeystoreConfig `yaml:"keystore"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	NATS     NATSConfig     `yaml:"nats"`
	Devices  []DeviceConfig `yaml:"devices"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MDNSConfig configures the DNS-SD advertisement of the ingest port.
type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// KeystoreConfig configures persistence of learned keys.
// An empty path disables persistence.
type KeystoreConfig struct {
	Path       string `yaml:"path"`
	Passphrase string `yaml:"passphrase"`
	Iterations int    `yaml:"iterations"`
}

// MQTTConfig configures the MQTT publisher. An empty broker disables it.
type MQTTConfig struct {
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	TopicPrefix string        `yaml:"topic_prefix"`
	QoS         byte          `yaml:"qos"`
	Timeout     time.Duration `yaml:"timeout"`
}

// NATSConfig configures the NATS publisher. An empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DeviceConfig configures one switch.
type DeviceConfig struct {
	Name        string `yaml:"name"`
	MACAddress  string `yaml:"mac_address"`
	SecurityKey string `yaml:"security_key"`

	// Buttons lists the buttons to publish. Empty publishes all.
	Buttons []string `yaml:"buttons"`

	// AdoptCommissionedKey verifies data telegrams with keys learned from
	// commissioning telegrams.
	AdoptCommissionedKey bool `yaml:"adopt_commissioned_key"`
}

// DefaultConfig returns the configuration used for unset fields.
func DefaultConfig() Config {
	return Config{
		Log:    LogConfig{Level: "info"},
		Listen: ":6215",
		MQTT: MQTTConfig{
			ClientID:    "ptm215b-bridge",
			TopicPrefix: "ptm215b",
			Timeout:     5 * time.Second,
		},
		NATS: NATSConfig{
			SubjectPrefix: "ptm215b",
		},
	}
}

// Load reads, parses and validates the configuration file.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over DefaultConfig. It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvKeystorePassphrase); v != "" {
		c.Keystore.Passphrase = v
	}
	if v := os.Getenv(EnvMQTTBroker); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.NATS.URL = v
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	if c.MQTT.QoS > 2 {
		return ErrInvalidQoS
	}
	if len(c.Devices) == 0 {
		return ErrNoDevices
	}

	seen := make(map[advertisement.Address]int, len(c.Devices))
	for i := range c.Devices {
		d := &c.Devices[i]

		addr, err := d.Address()
		if err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
		if j, dup := seen[addr]; dup {
			return fmt.Errorf("devices[%d]: %w: %s already configured at devices[%d]", i, ErrDuplicateDevice, addr, j)
		}
		seen[addr] = i

		if _, err := d.Key(); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
		if _, err := d.ParsedButtons(); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logging.LogLevel {
	l, _ := ParseLogLevel(c.Log.Level)
	return l
}

// ParseLogLevel maps a level name to a pion log level.
func ParseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(s) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info", "":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return logging.LogLevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}
}

// Address parses the device MAC address.
func (d *DeviceConfig) Address() (advertisement.Address, error) {
	addr, err := advertisement.ParseAddress(d.MACAddress)
	if err != nil {
		return addr, fmt.Errorf("%w %q", ErrInvalidMACAddress, d.MACAddress)
	}
	return addr, nil
}

// Key parses the security key. A missing key is the all-zero key.
func (d *DeviceConfig) Key() ([telegram.KeySize]byte, error) {
	if d.SecurityKey == "" {
		return [telegram.KeySize]byte{}, nil
	}
	return ParseSecurityKey(d.SecurityKey)
}

// ParsedButtons parses the button list. An empty list yields all buttons.
func (d *DeviceConfig) ParsedButtons() ([]ptm215b.Button, error) {
	if len(d.Buttons) == 0 {
		return append([]ptm215b.Button(nil), ptm215b.Buttons...), nil
	}

	buttons := make([]ptm215b.Button, 0, len(d.Buttons))
	seen := make(map[ptm215b.Button]bool)
	for _, s := range d.Buttons {
		b, err := ptm215b.ParseButton(s)
		if err != nil {
			return nil, fmt.Errorf("%w %q", ErrInvalidButton, s)
		}
		if seen[b] {
			return nil, fmt.Errorf("%w %q: listed twice", ErrInvalidButton, s)
		}
		seen[b] = true
		buttons = append(buttons, b)
	}
	return buttons, nil
}

// DisplayName returns the device name, or its address when unnamed.
func (d *DeviceConfig) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.MACAddress
}
