package publish

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/majkrzak/esphome-ptm215b/pkg/advertisement"
	"github.com/majkrzak/esphome-ptm215b/pkg/ptm215b"
	"github.com/nats-io/nats.go"
	"github.com/pion/logging"
)

// NATS defaults.
const (
	DefaultSubjectPrefix = "ptm215b"
	DefaultReconnectWait = 2 * time.Second
	DefaultMaxReconnects = -1
)

// NATSConn is the subset of *nats.Conn used by NATS.
type NATSConn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	// URL of the NATS server. Required unless Conn is set.
	URL string

	// Username and Password authenticate to the server. Optional.
	Username string
	Password string

	// SubjectPrefix is prepended to every subject (default: "ptm215b").
	SubjectPrefix string

	// Conn is an optional established connection. URL is ignored when set.
	Conn NATSConn

	// Now returns the event time. Defaults to time.Now.
	Now func() time.Time

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NATS publishes button states as JSON events on
// <prefix>.<address>.<button>.
type NATS struct {
	conn   NATSConn
	prefix string
	now    func() time.Time
	log    logging.LeveledLogger
}

// NewNATS connects to the NATS server unless a connection is supplied.
func NewNATS(config NATSConfig) (*NATS, error) {
	n := &NATS{
		conn:   config.Conn,
		prefix: strings.TrimSuffix(config.SubjectPrefix, "."),
		now:    config.Now,
	}
	if n.prefix == "" {
		n.prefix = DefaultSubjectPrefix
	}
	if n.now == nil {
		n.now = time.Now
	}
	if config.LoggerFactory != nil {
		n.log = config.LoggerFactory.NewLogger("publish-nats")
	}

	if n.conn == nil {
		if config.URL == "" {
			return nil, ErrNoBroker
		}
		nc, err := nats.Connect(config.URL,
			nats.Name("ptm215b-bridge"),
			nats.UserInfo(config.Username, config.Password),
			nats.ReconnectWait(DefaultReconnectWait),
			nats.MaxReconnects(DefaultMaxReconnects),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if n.log != nil && err != nil {
					n.log.Warnf("disconnected: %v", err)
				}
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				if n.log != nil {
					n.log.Infof("reconnected to %s", nc.ConnectedUrl())
				}
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("publish: nats connect %s: %w", config.URL, err)
		}
		n.conn = nc
	}

	return n, nil
}

// Subject returns the subject a button state is published on.
func (n *NATS) Subject(addr advertisement.Address, button ptm215b.Button) string {
	return n.prefix + "." + addr.Compact() + "." + button.String()
}

// Publish sends one button state event.
func (n *NATS) Publish(addr advertisement.Address, button ptm215b.Button, state bool) error {
	data, err := json.Marshal(Event{
		Address: addr,
		Button:  button.String(),
		State:   state,
		Time:    n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publish: encode event: %w", err)
	}

	subject := n.Subject(addr, button)
	if n.log != nil {
		n.log.Debugf("%s <- %s", subject, data)
	}

	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish: nats %s: %w", subject, err)
	}
	return nil
}

// Observer implements Publisher.
func (n *NATS) Observer(addr advertisement.Address, button ptm215b.Button) ptm215b.Observer {
	return ptm215b.ObserverFunc(func(state bool) {
		if err := n.Publish(addr, button, state); err != nil && n.log != nil {
			n.log.Errorf("%v", err)
		}
	})
}

// Close closes the connection.
func (n *NATS) Close() {
	n.conn.Close()
}
