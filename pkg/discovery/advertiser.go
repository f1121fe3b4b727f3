// Package discovery announces the bridge's advertisement ingest service
// over DNS-SD so that BLE scanner proxies can find it.
package discovery

import (
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DNS-SD service parameters.
const (
	ServiceBridge = "_ptm215b._udp"
	DefaultDomain = "local."
	DefaultPort   = 6215

	maxInstanceNameLen = 63
)

// MDNSServer is the interface for mDNS service registration.
// This allows for dependency injection in tests.
type MDNSServer interface {
	// SetText updates the TXT record of the registered service.
	SetText(txt []string)

	// Shutdown stops the server.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	// Register creates a new mDNS server for the given service.
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

// zeroconfServerFactory is the production implementation using grandcat/zeroconf.
type zeroconfServerFactory struct{}

func (z *zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	// Instance is the DNS-SD instance name.
	// If empty, "ptm215b-<hostname>" is used.
	Instance string

	// Port is the UDP ingest port to advertise (default: 6215).
	Port int

	// Interfaces specifies which network interfaces to advertise on.
	// If nil, all interfaces are used.
	Interfaces []net.Interface

	// ServerFactory is the factory for creating mDNS servers.
	// If nil, the default zeroconf factory is used.
	ServerFactory MDNSServerFactory

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Advertiser publishes the bridge service to the network.
type Advertiser struct {
	config  AdvertiserConfig
	factory MDNSServerFactory
	log     logging.LeveledLogger

	mu     sync.Mutex
	server MDNSServer
	closed bool
}

// NewAdvertiser creates a new Advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	if config.Port <= 0 || config.Port > 65535 {
		config.Port = DefaultPort
	}

	if config.Instance == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "bridge"
		}
		config.Instance = "ptm215b-" + host
	}
	if len(config.Instance) > maxInstanceNameLen {
		return nil, ErrInvalidInstanceName
	}

	factory := config.ServerFactory
	if factory == nil {
		factory = &zeroconfServerFactory{}
	}

	a := &Advertiser{
		config:  config,
		factory: factory,
	}

	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("discovery")
	}

	return a, nil
}

// Start begins advertising the bridge service.
func (a *Advertiser) Start(txt BridgeTXT) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server != nil {
		return ErrAlreadyStarted
	}

	records := txt.Encode()
	if a.log != nil {
		a.log.Debugf("registering mDNS service: instance=%s service=%s domain=%s port=%d",
			a.config.Instance, ServiceBridge, DefaultDomain, a.config.Port)
		a.log.Tracef("TXT records: %v", records)
	}

	server, err := a.factory.Register(
		a.config.Instance,
		ServiceBridge,
		DefaultDomain,
		a.config.Port,
		records,
		a.config.Interfaces,
	)
	if err != nil {
		return fmt.Errorf("discovery: mDNS registration failed for %s: %w", ServiceBridge, err)
	}

	if a.log != nil {
		a.log.Infof("advertising %s as %q on port %d", ServiceBridge, a.config.Instance, a.config.Port)
	}

	a.server = server
	return nil
}

// Update replaces the TXT record of the running advertisement.
func (a *Advertiser) Update(txt BridgeTXT) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server == nil {
		return ErrNotStarted
	}

	a.server.SetText(txt.Encode())
	return nil
}

// Stop stops advertising.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server == nil {
		return ErrNotStarted
	}

	a.server.Shutdown()
	a.server = nil

	if a.log != nil {
		a.log.Info("stopped advertising")
	}
	return nil
}

// Close stops advertising and closes the advertiser.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	a.closed = true

	return nil
}

// IsAdvertising reports whether the service is currently advertised.
func (a *Advertiser) IsAdvertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// Instance returns the DNS-SD instance name.
func (a *Advertiser) Instance() string {
	return a.config.Instance
}

// Port returns the advertised port.
func (a *Advertiser) Port() int {
	return a.config.Port
}
