package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/majkrzak/esphome-ptm215b/pkg/advertisement"
	"github.com/majkrzak/esphome-ptm215b/pkg/ptm215b"
	"github.com/pion/logging"
)

const fullConfig = `
log:
  level: debug
listen: "127.0.0.1:7000"
mdns:
  enabled: true
  instance: hallway
keystore:
  path: /var/lib/ptm215b/keys.yaml
  passphrase: secret
mqtt:
  broker: tcp://broker:1883
  qos: 1
  timeout: 2s
nats:
  url: nats://nats:4222
devices:
  - name: hallway
    mac_address: "E2:15:00:00:19:B8"
    security_key: "3D:DA:31:AD:44:76:7A:E3:CE:56:DC:E2:B3:CE:2A:BB"
    buttons: [bar, a0, B1]
  - mac_address: "AA:BB:CC:DD:EE:FF"
    adopt_commissioned_key: true
`

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.LogLevel() != logging.LogLevelDebug {
		t.Errorf("LogLevel() = %v, want debug", cfg.LogLevel())
	}
	if cfg.Listen != "127.0.0.1:7000" || !cfg.MDNS.Enabled || cfg.MDNS.Instance != "hallway" {
		t.Errorf("listen/mdns = %q %+v", cfg.Listen, cfg.MDNS)
	}
	if cfg.MQTT.QoS != 1 || cfg.MQTT.Timeout != 2*time.Second {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
	// Defaults survive for unset fields.
	if cfg.MQTT.TopicPrefix != "ptm215b" || cfg.MQTT.ClientID != "ptm215b-bridge" || cfg.NATS.SubjectPrefix != "ptm215b" {
		t.Errorf("defaults lost: mqtt %+v nats %+v", cfg.MQTT, cfg.NATS)
	}

	if len(cfg.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(cfg.Devices))
	}

	d := cfg.Devices[0]
	addr, _ := d.Address()
	if addr != (advertisement.Address{0xE2, 0x15, 0x00, 0x00, 0x19, 0xB8}) {
		t.Errorf("Address() = %v", addr)
	}
	key, _ := d.Key()
	if key[0] != 0x3D || key[15] != 0xBB {
		t.Errorf("Key() = %x", key)
	}
	buttons, _ := d.ParsedButtons()
	want := []ptm215b.Button{ptm215b.ButtonBar, ptm215b.ButtonA0, ptm215b.ButtonB1}
	if len(buttons) != len(want) {
		t.Fatalf("ParsedButtons() = %v, want %v", buttons, want)
	}
	for i := range want {
		if buttons[i] != want[i] {
			t.Errorf("ParsedButtons()[%d] = %v, want %v", i, buttons[i], want[i])
		}
	}
	if d.DisplayName() != "hallway" {
		t.Errorf("DisplayName() = %q", d.DisplayName())
	}

	d = cfg.Devices[1]
	if key, _ := d.Key(); key != ([16]byte{}) {
		t.Errorf("Key() without security_key = %x, want zero", key)
	}
	if buttons, _ := d.ParsedButtons(); len(buttons) != 5 {
		t.Errorf("ParsedButtons() without buttons = %v, want all", buttons)
	}
	if !d.AdoptCommissionedKey || d.DisplayName() != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("device = %+v", d)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{"no devices", "log: {level: info}\n", ErrNoDevices},
		{"bad level", "log: {level: loud}\ndevices: [{mac_address: 'AA:BB:CC:DD:EE:FF'}]\n", ErrInvalidLogLevel},
		{"bad qos", "mqtt: {qos: 3}\ndevices: [{mac_address: 'AA:BB:CC:DD:EE:FF'}]\n", ErrInvalidQoS},
		{"bad mac", "devices: [{mac_address: 'AA:BB:CC'}]\n", ErrInvalidMACAddress},
		{"duplicate", "devices: [{mac_address: 'AA:BB:CC:DD:EE:FF'}, {mac_address: 'aa:bb:cc:dd:ee:ff'}]\n", ErrDuplicateDevice},
		{"bad button", "devices: [{mac_address: 'AA:BB:CC:DD:EE:FF', buttons: [c0]}]\n", ErrInvalidButton},
		{"repeated button", "devices: [{mac_address: 'AA:BB:CC:DD:EE:FF', buttons: [a0, a0]}]\n", ErrInvalidButton},
		{"bad key", "devices: [{mac_address: 'AA:BB:CC:DD:EE:FF', security_key: 'AA:BB'}]\n", ErrSecurityKeyParts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSecurityKey(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr error
	}{
		{"valid upper", "3D:DA:31:AD:44:76:7A:E3:CE:56:DC:E2:B3:CE:2A:BB", nil},
		{"valid lower", "3d:da:31:ad:44:76:7a:e3:ce:56:dc:e2:b3:ce:2a:bb", nil},
		{"too few parts", "3D:DA:31:AD:44:76:7A:E3:CE:56:DC:E2:B3:CE:2A", ErrSecurityKeyParts},
		{"too many parts", "3D:DA:31:AD:44:76:7A:E3:CE:56:DC:E2:B3:CE:2A:BB:00", ErrSecurityKeyParts},
		{"no separators", "3DDA31AD44767AE3CE56DCE2B3CE2ABB", ErrSecurityKeyParts},
		{"short part", "3:DA:31:AD:44:76:7A:E3:CE:56:DC:E2:B3:CE:2A:BB", ErrSecurityKeyFormat},
		{"long part", "3DD:A:31:AD:44:76:7A:E3:CE:56:DC:E2:B3:CE:2A:BB", ErrSecurityKeyFormat},
		{"not hex", "ZZ:DA:31:AD:44:76:7A:E3:CE:56:DC:E2:B3:CE:2A:BB", ErrSecurityKeyHex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseSecurityKey(tt.in)
			if err != tt.wantErr {
				t.Fatalf("ParseSecurityKey() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && FormatSecurityKey(key) != "3D:DA:31:AD:44:76:7A:E3:CE:56:DC:E2:B3:CE:2A:BB" {
				t.Errorf("FormatSecurityKey() = %s", FormatSecurityKey(key))
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(fullConfig), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvLogLevel, "trace")
	t.Setenv(EnvNATSURL, "nats://override:4222")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel() != logging.LogLevelTrace {
		t.Errorf("LogLevel() = %v, want trace from environment", cfg.LogLevel())
	}
	if cfg.NATS.URL != "nats://override:4222" {
		t.Errorf("NATS.URL = %q", cfg.NATS.URL)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of missing file succeeded")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]logging.LogLevel{
		"":         logging.LogLevelInfo,
		"off":      logging.LogLevelDisabled,
		"ERROR":    logging.LogLevelError,
		"warning":  logging.LogLevelWarn,
		"Debug":    logging.LogLevelDebug,
		"trace":    logging.LogLevelTrace,
		"disabled": logging.LogLevelDisabled,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
}
