package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
)

// StaticResolver answers browses from a fixed set of entries.
type StaticResolver struct {
	mu      sync.RWMutex
	entries map[string][]*zeroconf.ServiceEntry
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{entries: make(map[string][]*zeroconf.ServiceEntry)}
}

// Add makes entry visible to browses of service.
func (r *StaticResolver) Add(service string, entry *zeroconf.ServiceEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[service] = append(r.entries[service], entry)
}

func (r *StaticResolver) Browse(ctx context.Context, service, domain string, out chan<- *zeroconf.ServiceEntry) error {
	r.mu.RLock()
	found := append([]*zeroconf.ServiceEntry(nil), r.entries[service]...)
	r.mu.RUnlock()

	for _, e := range found {
		select {
		case out <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// BridgeEntry builds the service entry a bridge at ip:port announces.
func BridgeEntry(instance string, port int, ip net.IP, txt BridgeTXT) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceBridge, DefaultDomain)
	e.HostName = instance + "." + DefaultDomain
	e.Port = port
	e.AddrIPv4 = []net.IP{ip}
	e.Text = txt.Encode()
	return e
}
