// Package transport carries BLE advertisements from scanner proxies to the
// bridge. Each UDP datagram holds one frame as produced by
// advertisement.EncodeFrame.
package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/majkrzak/esphome-ptm215b/pkg/advertisement"
	"github.com/pion/logging"
)

// DefaultPort is the default advertisement ingest port.
const DefaultPort = 6215

// readBufferSize leaves room to detect oversized datagrams.
const readBufferSize = 2048

// Handler is called for each decoded advertisement.
type Handler func(adv advertisement.Advertisement, from net.Addr)

// UDPStats counts datagrams seen by the read loop.
type UDPStats struct {
	Frames    uint64
	Malformed uint64
}

// UDP receives advertisement frames over a packet connection.
// It wraps a net.PacketConn and provides a read loop that calls
// the configured Handler for each decoded frame.
type UDP struct {
	conn    net.PacketConn
	handler Handler
	closeCh chan struct{}
	wg      sync.WaitGroup
	log     logging.LeveledLogger

	frames    atomic.Uint64
	malformed atomic.Uint64

	mu      sync.RWMutex
	started bool
	closed  bool
}

// UDPConfig configures the UDP transport.
type UDPConfig struct {
	// Conn is an optional pre-existing PacketConn to use.
	// If nil, a new connection will be created using ListenAddr.
	Conn net.PacketConn

	// ListenAddr is the address to listen on (e.g., ":6215").
	// Ignored if Conn is provided.
	ListenAddr string

	// Handler is called for each received advertisement.
	// Required.
	Handler Handler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewUDP creates a new UDP transport with the given configuration.
func NewUDP(config UDPConfig) (*UDP, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}

	u := &UDP{
		conn:    config.Conn,
		handler: config.Handler,
		closeCh: make(chan struct{}),
	}

	if config.LoggerFactory != nil {
		u.log = config.LoggerFactory.NewLogger("transport-udp")
	}

	if u.conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}

		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		u.conn = conn
	}

	return u, nil
}

// Start begins the read loop.
func (u *UDP) Start() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return ErrClosed
	}
	if u.started {
		u.mu.Unlock()
		return ErrAlreadyStarted
	}
	u.started = true
	u.mu.Unlock()

	if u.log != nil {
		u.log.Infof("receiving advertisements on %s", u.conn.LocalAddr())
	}

	u.wg.Add(1)
	go u.readLoop()

	return nil
}

// Stop closes the transport and waits for the read loop to exit.
func (u *UDP) Stop() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return ErrClosed
	}
	u.closed = true
	u.mu.Unlock()

	if u.log != nil {
		u.log.Info("stopping UDP transport")
	}

	close(u.closeCh)

	// Unblock any pending read.
	u.conn.SetReadDeadline(time.Now())
	u.conn.Close()
	u.wg.Wait()

	return nil
}

// Send encodes adv as a frame and sends it to addr. Scanner proxies and
// simulators use it to feed a bridge.
func (u *UDP) Send(adv advertisement.Advertisement, addr net.Addr) error {
	u.mu.RLock()
	if u.closed {
		u.mu.RUnlock()
		return ErrClosed
	}
	u.mu.RUnlock()

	if addr == nil {
		return ErrInvalidAddress
	}

	frame, err := advertisement.EncodeFrame(adv)
	if err != nil {
		return err
	}

	if u.log != nil {
		u.log.Tracef("sending %d byte frame for %s to %v", len(frame), adv.Address, addr)
	}

	if _, err := u.conn.WriteTo(frame, addr); err != nil {
		if u.log != nil {
			u.log.Warnf("send failed: %v", err)
		}
		return err
	}

	return nil
}

// LocalAddr returns the local address the transport is listening on.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Stats returns the read loop counters.
func (u *UDP) Stats() UDPStats {
	return UDPStats{
		Frames:    u.frames.Load(),
		Malformed: u.malformed.Load(),
	}
}

// readLoop reads frames from the connection and dispatches them.
func (u *UDP) readLoop() {
	defer u.wg.Done()

	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-u.closeCh:
			return
		default:
		}

		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-u.closeCh:
				return
			default:
				if u.log != nil {
					u.log.Warnf("UDP read error: %v", err)
				}
				continue
			}
		}

		if n == 0 {
			continue
		}

		// DecodeFrame copies what it keeps, so buf can be reused.
		adv, err := advertisement.DecodeFrame(buf[:n])
		if err != nil {
			u.malformed.Add(1)
			if u.log != nil {
				u.log.Debugf("dropping %d byte datagram from %v: %v", n, addr, err)
			}
			continue
		}
		u.frames.Add(1)

		if u.log != nil {
			u.log.Tracef("frame for %s from %v, %d records", adv.Address, addr, len(adv.ManufacturerData))
		}

		u.handler(adv, addr)
	}
}
