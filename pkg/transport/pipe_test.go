package transport

import (
	"net"
	"testing"
	"time"

	"github.com/majkrzak/esphome-ptm215b/pkg/advertisement"
)

// TestPipe_AutoProcess verifies that packets flow automatically by default.
func TestPipe_AutoProcess(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	if !p.AutoProcess() {
		t.Fatal("AutoProcess should be true by default")
	}

	conn0, conn1 := p.PacketConn(0), p.PacketConn(1)

	testData := []byte("auto-delivered packet")
	if _, err := conn0.WriteTo(testData, conn0.PeerAddr()); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	buf := make([]byte, 100)
	conn1.SetReadDeadline(time.Now().Add(time.Second))
	n, from, err := conn1.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if string(buf[:n]) != string(testData) {
		t.Errorf("read %q, want %q", buf[:n], testData)
	}
	if from != (PipeAddr{ID: 0}) {
		t.Errorf("from = %v, want pipe:0", from)
	}
}

// TestPipe_ManualProcess verifies that nothing is delivered without Process
// when auto-processing is disabled.
func TestPipe_ManualProcess(t *testing.T) {
	p := NewPipeWithConfig(PipeConfig{AutoProcess: false})
	defer p.Close()

	conn0, conn1 := p.PacketConn(0), p.PacketConn(1)
	conn0.WriteTo([]byte("queued"), nil)

	buf := make([]byte, 100)
	conn1.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
	if _, _, err := conn1.ReadFrom(buf); err == nil {
		t.Fatal("packet delivered without Process()")
	}

	got := readPackets(conn1, 1)
	if received := processUntil(t, p, got, 1); received[0] != "queued" {
		t.Errorf("read %q, want %q", received[0], "queued")
	}
}

// readPackets reads count packets from conn in the background. The pipe
// only delivers to a reader that is already waiting.
func readPackets(conn *PipePacketConn, count int) <-chan string {
	ch := make(chan string, count)
	go func() {
		buf := make([]byte, 100)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for i := 0; i < count; i++ {
			n, _, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			ch <- string(buf[:n])
		}
	}()
	return ch
}

// processUntil drives the pipe by hand until want packets were received.
func processUntil(t *testing.T, p *Pipe, got <-chan string, want int) []string {
	t.Helper()

	var received []string
	deadline := time.After(2 * time.Second)
	for len(received) < want {
		p.Process()
		select {
		case pkt := <-got:
			received = append(received, pkt)
		case <-time.After(time.Millisecond):
		case <-deadline:
			t.Fatalf("received %d packets, want %d", len(received), want)
		}
	}
	return received
}

func TestPipe_PacketConn(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	if p.PacketConn(0) != p.PacketConn(0) {
		t.Error("PacketConn(0) returned different connections")
	}
	if p.PacketConn(2) != nil {
		t.Error("PacketConn(2) should be nil")
	}
	if got := p.PacketConn(1).LocalAddr().String(); got != "pipe:1" {
		t.Errorf("LocalAddr() = %s, want pipe:1", got)
	}

	var _ net.PacketConn = p.PacketConn(0)
}

func TestNetworkCondition_DropRate(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	p.SetCondition(NetworkCondition{DropRate: 1.0})

	conn0, conn1 := p.PacketConn(0), p.PacketConn(1)

	testData := []byte("dropped packet")
	n, err := conn0.WriteTo(testData, nil)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n != len(testData) {
		t.Errorf("WriteTo returned %d, want %d", n, len(testData))
	}

	buf := make([]byte, 100)
	conn1.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, _, err := conn1.ReadFrom(buf); err == nil {
		t.Error("expected timeout error due to dropped packet")
	}
}

func TestNetworkCondition_DuplicateRate(t *testing.T) {
	p := NewPipeWithConfig(PipeConfig{AutoProcess: false, Seed: 1})
	defer p.Close()

	p.SetCondition(NetworkCondition{DuplicateRate: 1.0})
	if p.Condition().DuplicateRate != 1.0 {
		t.Fatalf("Condition() = %+v", p.Condition())
	}

	got := readPackets(p.PacketConn(1), 2)
	p.PacketConn(0).WriteTo([]byte("twice"), nil)

	for i, pkt := range processUntil(t, p, got, 2) {
		if pkt != "twice" {
			t.Errorf("packet %d = %q, want %q", i, pkt, "twice")
		}
	}
}

func TestPipe_SetAutoProcess(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	p.SetAutoProcess(false)
	if p.AutoProcess() {
		t.Error("AutoProcess() = true after disabling")
	}
	p.SetAutoProcess(true)
	if !p.AutoProcess() {
		t.Error("AutoProcess() = false after enabling")
	}
}

func TestPipe_Close(t *testing.T) {
	p := NewPipe()
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

// TestUDPOverPipe runs the UDP ingest on a lossy, repeating virtual link.
func TestUDPOverPipe(t *testing.T) {
	p := NewPipeWithConfig(PipeConfig{AutoProcess: true, Seed: 42})
	defer p.Close()

	ch := make(chan received, 64)
	server, err := NewUDP(UDPConfig{
		Conn: p.PacketConn(1),
		Handler: func(adv advertisement.Advertisement, from net.Addr) {
			ch <- received{adv, from}
		},
	})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer server.Stop()

	client, err := NewUDP(UDPConfig{
		Conn:    p.PacketConn(0),
		Handler: func(advertisement.Advertisement, net.Addr) {},
	})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}

	p.SetCondition(NetworkCondition{DuplicateRate: 1.0})
	if err := client.Send(testAdvertisement(), p.PacketConn(0).PeerAddr()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case r := <-ch:
			if r.adv.Address != testAdvertisement().Address {
				t.Errorf("Address = %v", r.adv.Address)
			}
			if r.from != (PipeAddr{ID: 0}) {
				t.Errorf("from = %v", r.from)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for copy %d", i+1)
		}
	}
}
