// Package bridge routes advertisements to the PTM215B devices they belong to.
package bridge

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"

	"github.com/majkrzak/esphome-ptm215b/pkg/advertisement"
	"github.com/majkrzak/esphome-ptm215b/pkg/crypto"
	"github.com/majkrzak/esphome-ptm215b/pkg/keystore"
	"github.com/majkrzak/esphome-ptm215b/pkg/ptm215b"
	"github.com/majkrzak/esphome-ptm215b/pkg/publish"
	"github.com/majkrzak/esphome-ptm215b/pkg/telegram"
	"github.com/pion/logging"
)

// Errors returned by New.
var (
	ErrNoDevices       = errors.New("bridge: no devices configured")
	ErrDuplicateDevice = errors.New("bridge: duplicate device address")
)

// DeviceConfig configures one switch.
type DeviceConfig struct {
	// Name is used in logs. Optional.
	Name string

	Address advertisement.Address

	// Key is the configured security key. When zero, a key from the
	// store is used if one exists.
	Key [telegram.KeySize]byte

	// Buttons are published through every publisher. Empty means all.
	Buttons []ptm215b.Button

	// AdoptCommissionedKey trusts keys from commissioning telegrams, both
	// at runtime and from the store at startup.
	AdoptCommissionedKey bool
}

// Config configures a Bridge.
type Config struct {
	Devices []DeviceConfig

	// Store persists keys learned from commissioning telegrams. Stored
	// keys are loaded only for devices without a configured key that
	// have AdoptCommissionedKey set. Optional.
	Store keystore.Store

	// Publishers receive button states of every device.
	Publishers []publish.Publisher

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Stats counts handled advertisements by outcome.
type Stats struct {
	Advertisements uint64
	Outcomes       map[ptm215b.Outcome]uint64
}

// Bridge owns one ptm215b.Device per configured switch.
type Bridge struct {
	devices map[advertisement.Address]*ptm215b.Device
	names   map[advertisement.Address]string
	log     logging.LeveledLogger

	mu    sync.Mutex
	stats Stats
}

// New creates the devices. Key selection per device: configured key,
// then stored key if AdoptCommissionedKey is set, then the zero key.
func New(config Config) (*Bridge, error) {
	if len(config.Devices) == 0 {
		return nil, ErrNoDevices
	}

	b := &Bridge{
		devices: make(map[advertisement.Address]*ptm215b.Device, len(config.Devices)),
		names:   make(map[advertisement.Address]string, len(config.Devices)),
		stats:   Stats{Outcomes: make(map[ptm215b.Outcome]uint64)},
	}
	if config.LoggerFactory != nil {
		b.log = config.LoggerFactory.NewLogger("bridge")
	}

	var sink ptm215b.KeySink
	if config.Store != nil {
		sink = keystore.NewSink(config.Store, config.LoggerFactory)
	}

	for _, dc := range config.Devices {
		if _, dup := b.devices[dc.Address]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, dc.Address)
		}

		key, err := b.resolveKey(dc, config.Store)
		if err != nil {
			return nil, err
		}

		buttons := dc.Buttons
		if len(buttons) == 0 {
			buttons = ptm215b.Buttons
		}

		dev, err := ptm215b.NewDevice(ptm215b.Config{
			Address:              dc.Address,
			Key:                  key,
			Observers:            publish.Observers(dc.Address, buttons, config.Publishers...),
			KeySink:              sink,
			AdoptCommissionedKey: dc.AdoptCommissionedKey,
			LoggerFactory:        config.LoggerFactory,
		})
		if err != nil {
			return nil, fmt.Errorf("bridge: device %s: %w", dc.Address, err)
		}

		b.devices[dc.Address] = dev
		b.names[dc.Address] = dc.Name
		if b.log != nil {
			b.log.Infof("%s: tracking %s (authentication %v)", dc.Address, b.displayName(dc.Address), dev.AuthenticationEnabled())
		}
	}

	return b, nil
}

func (b *Bridge) resolveKey(dc DeviceConfig, store keystore.Store) ([telegram.KeySize]byte, error) {
	// Stored keys come from unauthenticated commissioning telegrams.
	if !crypto.IsZeroKey(dc.Key) || store == nil || !dc.AdoptCommissionedKey {
		return dc.Key, nil
	}

	key, ok, err := store.LoadKey(dc.Address)
	if err != nil {
		return dc.Key, fmt.Errorf("bridge: load key for %s: %w", dc.Address, err)
	}
	if !ok {
		return dc.Key, nil
	}
	if b.log != nil {
		b.log.Debugf("%s: using stored key", dc.Address)
	}
	return key, nil
}

func (b *Bridge) displayName(addr advertisement.Address) string {
	if n := b.names[addr]; n != "" {
		return n
	}
	return addr.String()
}

// HandleAdvertisement dispatches adv to the device bound to its address.
// Advertisements from unknown addresses yield UnmatchedAddress.
func (b *Bridge) HandleAdvertisement(adv advertisement.Advertisement) ptm215b.Result {
	var res ptm215b.Result

	if dev, ok := b.devices[adv.Address]; ok {
		res = dev.HandleDevice(adv)
	} else {
		res = ptm215b.Result{Outcome: ptm215b.UnmatchedAddress}
		if b.log != nil {
			b.log.Tracef("%s: no device configured", adv.Address)
		}
	}

	b.mu.Lock()
	b.stats.Advertisements++
	b.stats.Outcomes[res.Outcome]++
	b.mu.Unlock()

	return res
}

// Ingest matches transport.Handler.
func (b *Bridge) Ingest(adv advertisement.Advertisement, from net.Addr) {
	res := b.HandleAdvertisement(adv)
	if b.log != nil && res.Accepted() {
		b.log.Debugf("%s (%s) via %v: %v", b.displayName(adv.Address), adv.Address, from, res.Telegram)
	}
}

// Replay feeds a capture file through the bridge. fn, if not nil, is
// called with every result.
func (b *Bridge) Replay(r io.Reader, fn func(lineNo int, adv advertisement.Advertisement, res ptm215b.Result)) error {
	return advertisement.ReadCapture(r, func(lineNo int, adv advertisement.Advertisement) error {
		res := b.HandleAdvertisement(adv)
		if fn != nil {
			fn(lineNo, adv, res)
		}
		return nil
	})
}

// Device returns the device bound to addr.
func (b *Bridge) Device(addr advertisement.Address) (*ptm215b.Device, bool) {
	d, ok := b.devices[addr]
	return d, ok
}

// Addresses returns the configured addresses, sorted.
func (b *Bridge) Addresses() []advertisement.Address {
	addrs := make([]advertisement.Address, 0, len(b.devices))
	for a := range b.devices {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Uint64() < addrs[j].Uint64() })
	return addrs
}

// Len returns the number of devices.
func (b *Bridge) Len() int {
	return len(b.devices)
}

// Stats returns a snapshot of the counters.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		Advertisements: b.stats.Advertisements,
		Outcomes:       make(map[ptm215b.Outcome]uint64, len(b.stats.Outcomes)),
	}
	for o, n := range b.stats.Outcomes {
		s.Outcomes[o] = n
	}
	return s
}
