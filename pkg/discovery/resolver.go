package discovery

import (
	"context"
	"net"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultBrowseTimeout is the default timeout for browse operations.
const DefaultBrowseTimeout = 5 * time.Second

// Bridge is a discovered bridge service.
type Bridge struct {
	Instance string
	HostName string
	Port     int

	// IPs holds IPv4 addresses first, then IPv6.
	IPs []net.IP

	TXT BridgeTXT
}

// Addr returns the UDP address of the bridge ingest, or nil when the
// service carried no address.
func (b Bridge) Addr() *net.UDPAddr {
	if len(b.IPs) == 0 {
		return nil
	}
	return &net.UDPAddr{IP: b.IPs[0], Port: b.Port}
}

// MDNSResolver is the interface for mDNS service resolution.
// This allows for dependency injection in tests.
type MDNSResolver interface {
	// Browse browses for services of the given type.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// MDNSResolver is the underlying mDNS resolver implementation.
	// If nil, the default zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// BrowseTimeout is the timeout for browse operations.
	// If zero, DefaultBrowseTimeout is used.
	BrowseTimeout time.Duration

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Resolver discovers bridges via DNS-SD.
type Resolver struct {
	config   ResolverConfig
	resolver MDNSResolver
	log      logging.LeveledLogger
}

// NewResolver creates a new Resolver with the given configuration.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, err
		}
		resolver = zr
	}

	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}

	r := &Resolver{
		config:   config,
		resolver: resolver,
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("discovery")
	}
	return r, nil
}

// Browse collects the bridges answering until ctx is done or the browse
// timeout expires. Entries with an unreadable TXT record are skipped.
func (r *Resolver) Browse(ctx context.Context) ([]Bridge, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.BrowseTimeout)
		defer cancel()
	}

	entries := make(chan *zeroconf.ServiceEntry)
	errCh := make(chan error, 1)
	go func(entries chan<- *zeroconf.ServiceEntry) {
		errCh <- r.resolver.Browse(ctx, ServiceBridge, DefaultDomain, entries)
	}(entries)

	var bridges []Bridge
	seen := make(map[string]bool)

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				// zeroconf closes the channel when ctx is done.
				entries = nil
				continue
			}
			if entry == nil || seen[entry.Instance] {
				continue
			}
			b, err := entryToBridge(entry)
			if err != nil {
				if r.log != nil {
					r.log.Debugf("ignoring %q: %v", entry.Instance, err)
				}
				continue
			}
			seen[entry.Instance] = true
			bridges = append(bridges, b)
		case err := <-errCh:
			if err != nil {
				return bridges, err
			}
			// Browse returned early; drain until ctx is done.
			errCh = nil
		case <-ctx.Done():
			return bridges, nil
		}
	}
}

func entryToBridge(entry *zeroconf.ServiceEntry) (Bridge, error) {
	txt, err := ParseBridgeTXT(entry.Text)
	if err != nil {
		return Bridge{}, err
	}

	ips := make([]net.IP, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)

	return Bridge{
		Instance: entry.Instance,
		HostName: entry.HostName,
		Port:     entry.Port,
		IPs:      ips,
		TXT:      txt,
	}, nil
}
