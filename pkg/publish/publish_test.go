package publish

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/majkrzak/esphome-ptm215b/pkg/advertisement"
	"github.com/majkrzak/esphome-ptm215b/pkg/ptm215b"
)

var testAddr = advertisement.Address{0xE2, 0x15, 0x00, 0x00, 0x19, 0xB8}

// fakeToken is a completed mqtt.Token.
type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.timeout {
		close(ch)
	}
	return ch
}

type mqttMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type fakeMQTTClient struct {
	mu           sync.Mutex
	connected    bool
	disconnected bool
	messages     []mqttMessage
	publishErr   error
	timeout      bool
}

func (c *fakeMQTTClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return &fakeToken{}
}

func (c *fakeMQTTClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

func (c *fakeMQTTClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, mqttMessage{topic, qos, retained, payload.(string)})
	return &fakeToken{err: c.publishErr, timeout: c.timeout}
}

type natsMessage struct {
	subject string
	data    []byte
}

type fakeNATSConn struct {
	messages []natsMessage
	err      error
	closed   bool
}

func (c *fakeNATSConn) Publish(subject string, data []byte) error {
	c.messages = append(c.messages, natsMessage{subject, data})
	return c.err
}

func (c *fakeNATSConn) Close() { c.closed = true }

func TestMQTTPublish(t *testing.T) {
	client := &fakeMQTTClient{}
	m, err := NewMQTT(MQTTConfig{Client: client, TopicPrefix: "home/switches/", QoS: 1})
	if err != nil {
		t.Fatalf("NewMQTT() error = %v", err)
	}
	if err := m.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if got := m.Topic(testAddr, ptm215b.ButtonA0); got != "home/switches/e215000019b8/a0" {
		t.Errorf("Topic() = %q", got)
	}

	m.Observer(testAddr, ptm215b.ButtonB1).PublishState(true)
	m.Observer(testAddr, ptm215b.ButtonBar).PublishState(false)

	want := []mqttMessage{
		{"home/switches/e215000019b8/b1", 1, true, "ON"},
		{"home/switches/e215000019b8/bar", 1, true, "OFF"},
	}
	if len(client.messages) != len(want) {
		t.Fatalf("published %d messages, want %d", len(client.messages), len(want))
	}
	for i := range want {
		if client.messages[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, client.messages[i], want[i])
		}
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	last := client.messages[len(client.messages)-1]
	if last.topic != "home/switches/status" || last.payload != "offline" || !last.retained {
		t.Errorf("Close() published %+v, want retained offline status", last)
	}
	if !client.disconnected {
		t.Error("Close() did not disconnect")
	}
	if err := m.Publish(testAddr, ptm215b.ButtonA0, true); err != ErrClosed {
		t.Errorf("Publish() after Close error = %v, want %v", err, ErrClosed)
	}
}

func TestMQTTErrors(t *testing.T) {
	t.Run("no broker", func(t *testing.T) {
		if _, err := NewMQTT(MQTTConfig{}); err != ErrNoBroker {
			t.Errorf("NewMQTT() error = %v, want %v", err, ErrNoBroker)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		m, _ := NewMQTT(MQTTConfig{Client: &fakeMQTTClient{timeout: true}})
		if err := m.Publish(testAddr, ptm215b.ButtonA0, true); !errors.Is(err, ErrTimeout) {
			t.Errorf("Publish() error = %v, want %v", err, ErrTimeout)
		}
	})

	t.Run("broker error", func(t *testing.T) {
		brokerErr := errors.New("not authorized")
		m, _ := NewMQTT(MQTTConfig{Client: &fakeMQTTClient{publishErr: brokerErr}})
		if err := m.Publish(testAddr, ptm215b.ButtonA0, true); !errors.Is(err, brokerErr) {
			t.Errorf("Publish() error = %v, want %v", err, brokerErr)
		}
	})

	t.Run("default prefix", func(t *testing.T) {
		m, _ := NewMQTT(MQTTConfig{Client: &fakeMQTTClient{}})
		if got := m.Topic(testAddr, ptm215b.ButtonA1); got != "ptm215b/e215000019b8/a1" {
			t.Errorf("Topic() = %q", got)
		}
	})
}

func TestNATSPublish(t *testing.T) {
	conn := &fakeNATSConn{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n, err := NewNATS(NATSConfig{Conn: conn, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("NewNATS() error = %v", err)
	}

	n.Observer(testAddr, ptm215b.ButtonA1).PublishState(true)

	if len(conn.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(conn.messages))
	}
	msg := conn.messages[0]
	if msg.subject != "ptm215b.e215000019b8.a1" {
		t.Errorf("subject = %q", msg.subject)
	}

	var ev map[string]interface{}
	if err := json.Unmarshal(msg.data, &ev); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if ev["address"] != "E2:15:00:00:19:B8" || ev["button"] != "a1" || ev["state"] != true ||
		ev["time"] != "2024-05-01T12:00:00Z" {
		t.Errorf("event = %v", ev)
	}

	conn.err = errors.New("connection closed")
	if err := n.Publish(testAddr, ptm215b.ButtonA1, false); !errors.Is(err, conn.err) {
		t.Errorf("Publish() error = %v, want %v", err, conn.err)
	}

	n.Close()
	if !conn.closed {
		t.Error("Close() did not close the connection")
	}

	if _, err := NewNATS(NATSConfig{}); err != ErrNoBroker {
		t.Errorf("NewNATS() error = %v, want %v", err, ErrNoBroker)
	}
}

func TestObservers(t *testing.T) {
	client := &fakeMQTTClient{}
	m, _ := NewMQTT(MQTTConfig{Client: client})
	conn := &fakeNATSConn{}
	n, _ := NewNATS(NATSConfig{Conn: conn})

	if Observers(testAddr, ptm215b.Buttons) != nil {
		t.Error("Observers() without publishers should be nil")
	}

	obs := Observers(testAddr, []ptm215b.Button{ptm215b.ButtonA0, ptm215b.ButtonB0}, m, n)
	if len(obs) != 2 {
		t.Fatalf("Observers() returned %d observers, want 2", len(obs))
	}

	d, err := ptm215b.NewDevice(ptm215b.Config{Address: testAddr, Observers: obs})
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	// seq 1, press A0, zero key.
	payload := []byte{0x01, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00}
	if res := d.HandleAdvertisement(testAddr, 0x03DA, payload); !res.Accepted() {
		t.Fatalf("Outcome = %v", res.Outcome)
	}

	if len(client.messages) != 2 || client.messages[0].payload != "ON" || client.messages[1].payload != "OFF" {
		t.Errorf("mqtt messages = %+v", client.messages)
	}
	if len(conn.messages) != 2 || conn.messages[0].subject != "ptm215b.e215000019b8.a0" {
		t.Errorf("nats messages = %+v", conn.messages)
	}
}

func TestFanout(t *testing.T) {
	var got []bool
	rec := ptm215b.ObserverFunc(func(s bool) { got = append(got, s) })

	Fanout{rec, rec, rec}.PublishState(true)
	if len(got) != 3 {
		t.Errorf("fanout notified %d observers, want 3", len(got))
	}
}
