package publish

import (
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/majkrzak/esphome-ptm215b/pkg/advertisement"
	"github.com/majkrzak/esphome-ptm215b/pkg/ptm215b"
	"github.com/pion/logging"
)

// MQTT defaults.
const (
	DefaultTopicPrefix = "ptm215b"
	DefaultTimeout     = 5 * time.Second

	availabilityTopic = "status"
	payloadOnline     = "online"
	payloadOffline    = "offline"
)

// MQTTClient is the subset of mqtt.Client used by MQTT.
type MQTTClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	// Required unless Client is set.
	Broker string

	// ClientID identifies the bridge to the broker.
	ClientID string

	// Username and Password authenticate to the broker. Optional.
	Username string
	Password string

	// TopicPrefix is prepended to every topic (default: "ptm215b").
	TopicPrefix string

	// QoS of published messages.
	QoS byte

	// Timeout bounds connect and publish acknowledgements (default: 5s).
	Timeout time.Duration

	// Client is an optional pre-built client. Broker is ignored when set.
	Client MQTTClient

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// MQTT publishes button states as retained "ON"/"OFF" messages on
// <prefix>/<address>/<button>, and bridge availability on <prefix>/status.
type MQTT struct {
	client  MQTTClient
	prefix  string
	qos     byte
	timeout time.Duration
	log     logging.LeveledLogger

	mu     sync.Mutex
	closed bool
}

// NewMQTT creates an MQTT publisher. Connect must be called before
// publishing.
func NewMQTT(config MQTTConfig) (*MQTT, error) {
	m := &MQTT{
		client:  config.Client,
		prefix:  strings.TrimSuffix(config.TopicPrefix, "/"),
		qos:     config.QoS,
		timeout: config.Timeout,
	}
	if m.prefix == "" {
		m.prefix = DefaultTopicPrefix
	}
	if m.timeout == 0 {
		m.timeout = DefaultTimeout
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("publish-mqtt")
	}

	if m.client == nil {
		if config.Broker == "" {
			return nil, ErrNoBroker
		}
		clientID := config.ClientID
		if clientID == "" {
			clientID = "ptm215b-bridge"
		}

		opts := mqtt.NewClientOptions().
			AddBroker(config.Broker).
			SetClientID(clientID).
			SetUsername(config.Username).
			SetPassword(config.Password).
			SetAutoReconnect(true).
			SetConnectTimeout(m.timeout).
			SetWriteTimeout(m.timeout).
			SetWill(m.prefix+"/"+availabilityTopic, payloadOffline, 1, true).
			SetOnConnectHandler(func(c mqtt.Client) {
				if m.log != nil {
					m.log.Infof("connected to %s", config.Broker)
				}
				c.Publish(m.prefix+"/"+availabilityTopic, 1, true, payloadOnline)
			}).
			SetConnectionLostHandler(func(_ mqtt.Client, err error) {
				if m.log != nil {
					m.log.Warnf("connection lost: %v", err)
				}
			})
		m.client = mqtt.NewClient(opts)
	}

	return m, nil
}

// Connect connects to the broker.
func (m *MQTT) Connect() error {
	return m.wait(m.client.Connect(), "connect")
}

// Topic returns the topic a button state is published on.
func (m *MQTT) Topic(addr advertisement.Address, button ptm215b.Button) string {
	return m.prefix + "/" + addr.Compact() + "/" + button.String()
}

// Publish sends one button state and waits for the acknowledgement.
func (m *MQTT) Publish(addr advertisement.Address, button ptm215b.Button, state bool) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	topic := m.Topic(addr, button)
	payload := statePayload(state)

	if m.log != nil {
		m.log.Debugf("%s <- %s", topic, payload)
	}

	return m.wait(m.client.Publish(topic, m.qos, true, payload), "publish "+topic)
}

// Observer implements Publisher.
func (m *MQTT) Observer(addr advertisement.Address, button ptm215b.Button) ptm215b.Observer {
	return ptm215b.ObserverFunc(func(state bool) {
		if err := m.Publish(addr, button, state); err != nil && m.log != nil {
			m.log.Errorf("%v", err)
		}
	})
}

// Close marks the bridge offline and disconnects.
func (m *MQTT) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.mu.Unlock()

	if m.client.IsConnected() {
		m.wait(m.client.Publish(m.prefix+"/"+availabilityTopic, 1, true, payloadOffline), "publish offline")
		m.client.Disconnect(250)
	}
	return nil
}

func (m *MQTT) wait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(m.timeout) {
		return fmt.Errorf("%w: mqtt %s", ErrTimeout, tag)
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("publish: mqtt %s: %w", tag, err)
	}
	return nil
}
