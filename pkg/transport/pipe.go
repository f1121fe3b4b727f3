package transport

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures link behavior simulation. It models the
// radio side of the system: PTM215B switches repeat every telegram, and
// scanners miss some of them.
type NetworkCondition struct {
	// DropRate is the probability of dropping a packet (0.0 - 1.0).
	DropRate float64

	// DuplicateRate is the probability of delivering a packet twice (0.0 - 1.0).
	DuplicateRate float64
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess enables automatic packet delivery in a background goroutine.
	AutoProcess bool

	// ProcessInterval is how often the auto-processor delivers packets.
	// Default: 1ms
	ProcessInterval time.Duration

	// Seed seeds the condition simulator. Zero uses the current time.
	Seed int64
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: 1 * time.Millisecond,
	}
}

// Pipe provides bidirectional in-memory packet communication between two
// endpoints. It wraps pion's test.Bridge and adds drop and duplicate
// simulation.
type Pipe struct {
	bridge *test.Bridge

	mu              sync.Mutex
	condition       NetworkCondition
	closed          bool
	rng             *rand.Rand
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
	conns           [2]*PipePacketConn
}

// NewPipe creates a new pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a new pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	p := &Pipe{
		bridge:          test.NewBridge(),
		rng:             rand.New(rand.NewSource(seed)),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}

	if p.processInterval == 0 {
		p.processInterval = 1 * time.Millisecond
	}

	if p.autoProcess {
		p.startAutoProcess()
	}

	return p
}

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func(stopCh chan struct{}) {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}(p.stopCh)
}

// SetAutoProcess enables or disables automatic packet delivery.
// When disabled, Tick or Process must be called manually.
func (p *Pipe) SetAutoProcess(enabled bool) {
	p.mu.Lock()
	if p.closed || p.autoProcess == enabled {
		p.mu.Unlock()
		return
	}
	p.autoProcess = enabled

	if enabled {
		p.stopCh = make(chan struct{})
		p.startAutoProcess()
		p.mu.Unlock()
		return
	}

	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()
}

// AutoProcess returns whether auto-processing is enabled.
func (p *Pipe) AutoProcess() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoProcess
}

// SetCondition configures link simulation for packets in both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Condition returns the current link simulation configuration.
func (p *Pipe) Condition() NetworkCondition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.condition
}

// roll decides the fate of one packet.
func (p *Pipe) roll() (drop, duplicate bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.condition.DropRate > 0 && p.rng.Float64() < p.condition.DropRate {
		return true, false
	}
	if p.condition.DuplicateRate > 0 && p.rng.Float64() < p.condition.DuplicateRate {
		return false, true
	}
	return false, false
}

// Tick delivers one packet in each direction, if available.
// Returns the number of packets delivered (0, 1, or 2).
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers all queued packets and returns how many were delivered.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			break
		}
		count += n
	}
	return count
}

// PacketConn returns the packet connection for endpoint id (0 or 1).
// Repeated calls return the same connection.
func (p *Pipe) PacketConn(id int) *PipePacketConn {
	if id != 0 && id != 1 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conns[id] == nil {
		conn := p.bridge.GetConn0()
		if id == 1 {
			conn = p.bridge.GetConn1()
		}
		p.conns[id] = &PipePacketConn{
			conn:     conn,
			local:    PipeAddr{ID: id},
			peerAddr: PipeAddr{ID: 1 - id},
			pipe:     p,
		}
	}
	return p.conns[id]
}

// Close closes both endpoints of the pipe and stops auto-processing.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	// Endpoints may already be closed by their users.
	p.bridge.GetConn0().Close()
	p.bridge.GetConn1().Close()
	return nil
}

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	ID int
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns a string representation of the address.
func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d", a.ID) }

// PipePacketConn wraps a Pipe endpoint to implement net.PacketConn, so the
// UDP transport can run over a pipe.
type PipePacketConn struct {
	conn     net.Conn
	local    PipeAddr
	peerAddr net.Addr
	pipe     *Pipe
}

// ReadFrom reads a packet from the pipe. The returned address is the peer's.
func (c *PipePacketConn) ReadFrom(b []byte) (n int, addr net.Addr, err error) {
	n, err = c.conn.Read(b)
	return n, c.peerAddr, err
}

// WriteTo writes a packet to the pipe, applying the pipe's link
// conditions. addr is ignored since the pipe has only one peer.
func (c *PipePacketConn) WriteTo(b []byte, addr net.Addr) (n int, err error) {
	drop, duplicate := c.pipe.roll()
	if drop {
		return len(b), nil
	}
	if duplicate {
		if _, err := c.conn.Write(b); err != nil {
			return 0, err
		}
	}
	return c.conn.Write(b)
}

// Close closes the pipe connection.
func (c *PipePacketConn) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the local address.
func (c *PipePacketConn) LocalAddr() net.Addr {
	return c.local
}

// PeerAddr returns the address of the other endpoint.
func (c *PipePacketConn) PeerAddr() net.Addr {
	return c.peerAddr
}

// SetDeadline sets the read and write deadlines.
func (c *PipePacketConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline sets the read deadline.
func (c *PipePacketConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *PipePacketConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

var _ net.PacketConn = (*PipePacketConn)(nil)
