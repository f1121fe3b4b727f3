package transport

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/majkrzak/esphome-ptm215b/pkg/advertisement"
)

type received struct {
	adv  advertisement.Advertisement
	from net.Addr
}

func testAdvertisement() advertisement.Advertisement {
	return advertisement.Advertisement{
		Address: advertisement.Address{0xE2, 0x15, 0x00, 0x00, 0x19, 0xB8},
		ManufacturerData: []advertisement.ManufacturerData{
			{CompanyID: 0x03DA, Data: []byte{0x5d, 0x04, 0x00, 0x00, 0x11, 0xb2, 0xfa, 0x88, 0xff}},
		},
	}
}

func newTestUDP(t *testing.T, ch chan received) *UDP {
	t.Helper()
	u, err := NewUDP(UDPConfig{
		ListenAddr: "127.0.0.1:0",
		Handler: func(adv advertisement.Advertisement, from net.Addr) {
			if ch != nil {
				ch <- received{adv, from}
			}
		},
	})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}
	return u
}

func TestNewUDP(t *testing.T) {
	t.Run("with handler", func(t *testing.T) {
		u := newTestUDP(t, nil)
		defer u.Stop()

		if u.conn == nil {
			t.Error("NewUDP() conn is nil")
		}
	})

	t.Run("without handler", func(t *testing.T) {
		_, err := NewUDP(UDPConfig{
			ListenAddr: "127.0.0.1:0",
		})
		if err != ErrNoHandler {
			t.Errorf("NewUDP() error = %v, want %v", err, ErrNoHandler)
		}
	})

	t.Run("with injected conn", func(t *testing.T) {
		conn, err := net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("ListenPacket() error = %v", err)
		}

		u, err := NewUDP(UDPConfig{
			Conn:    conn,
			Handler: func(advertisement.Advertisement, net.Addr) {},
		})
		if err != nil {
			t.Fatalf("NewUDP() error = %v", err)
		}
		defer u.Stop()

		if u.conn != conn {
			t.Error("NewUDP() did not use injected conn")
		}
	})
}

func TestUDPStartStop(t *testing.T) {
	u := newTestUDP(t, nil)

	if err := u.Start(); err != nil {
		t.Errorf("Start() error = %v", err)
	}

	if err := u.Start(); err != ErrAlreadyStarted {
		t.Errorf("Start() second call error = %v, want %v", err, ErrAlreadyStarted)
	}

	if err := u.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}

	if err := u.Stop(); err != ErrClosed {
		t.Errorf("Stop() second call error = %v, want %v", err, ErrClosed)
	}

	if err := u.Start(); err != ErrClosed {
		t.Errorf("Start() after Stop error = %v, want %v", err, ErrClosed)
	}
}

func TestUDPSend(t *testing.T) {
	t.Run("normal send", func(t *testing.T) {
		ch := make(chan received, 1)
		server := newTestUDP(t, ch)
		if err := server.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		defer server.Stop()

		client := newTestUDP(t, nil)
		defer client.Stop()

		want := testAdvertisement()
		if err := client.Send(want, server.LocalAddr()); err != nil {
			t.Fatalf("Send() error = %v", err)
		}

		select {
		case r := <-ch:
			if r.adv.Address != want.Address {
				t.Errorf("Address = %v, want %v", r.adv.Address, want.Address)
			}
			if len(r.adv.ManufacturerData) != 1 ||
				r.adv.ManufacturerData[0].CompanyID != 0x03DA ||
				!bytes.Equal(r.adv.ManufacturerData[0].Data, want.ManufacturerData[0].Data) {
				t.Errorf("ManufacturerData = %+v", r.adv.ManufacturerData)
			}
			if r.from.String() != client.LocalAddr().String() {
				t.Errorf("from = %v, want %v", r.from, client.LocalAddr())
			}
		case <-time.After(time.Second):
			t.Error("timeout waiting for advertisement")
		}

		if s := server.Stats(); s.Frames != 1 || s.Malformed != 0 {
			t.Errorf("Stats() = %+v", s)
		}
	})

	t.Run("nil address", func(t *testing.T) {
		u := newTestUDP(t, nil)
		defer u.Stop()

		if err := u.Send(testAdvertisement(), nil); err != ErrInvalidAddress {
			t.Errorf("Send() error = %v, want %v", err, ErrInvalidAddress)
		}
	})

	t.Run("record too long", func(t *testing.T) {
		u := newTestUDP(t, nil)
		defer u.Stop()

		adv := testAdvertisement()
		adv.ManufacturerData[0].Data = make([]byte, 300)
		addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:6215")
		if err := u.Send(adv, addr); err == nil {
			t.Error("Send() succeeded for oversized record")
		}
	})

	t.Run("send after close", func(t *testing.T) {
		u := newTestUDP(t, nil)
		u.Stop()

		addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:6215")
		if err := u.Send(testAdvertisement(), addr); err != ErrClosed {
			t.Errorf("Send() error = %v, want %v", err, ErrClosed)
		}
	})
}

func TestUDPMalformedFrames(t *testing.T) {
	ch := make(chan received, 1)
	server := newTestUDP(t, ch)
	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer server.Stop()

	raw, err := net.Dial("udp", server.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer raw.Close()

	// Too short for an address, then a truncated AD structure.
	raw.Write([]byte{0x01, 0x02})
	raw.Write([]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x0C, 0xFF, 0xDA})

	frame, _ := advertisement.EncodeFrame(testAdvertisement())
	raw.Write(frame)

	select {
	case r := <-ch:
		if r.adv.Address != testAdvertisement().Address {
			t.Errorf("Address = %v", r.adv.Address)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for valid frame")
	}

	if s := server.Stats(); s.Malformed != 2 || s.Frames != 1 {
		t.Errorf("Stats() = %+v, want 2 malformed, 1 frame", s)
	}
}

func TestUDPLocalAddr(t *testing.T) {
	u := newTestUDP(t, nil)
	defer u.Stop()

	udpAddr, ok := u.LocalAddr().(*net.UDPAddr)
	if !ok {
		t.Fatalf("LocalAddr() type = %T, want *net.UDPAddr", u.LocalAddr())
	}
	if udpAddr.Port == 0 {
		t.Error("LocalAddr() port = 0, want ephemeral port")
	}
}
