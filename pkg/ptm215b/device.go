package ptm215b

import (
	"errors"
	"sync"

	"github.com/majkrzak/esphome-ptm215b/pkg/advertisement"
	"github.com/majkrzak/esphome-ptm215b/pkg/crypto"
	"github.com/majkrzak/esphome-ptm215b/pkg/freshness"
	"github.com/majkrzak/esphome-ptm215b/pkg/telegram"
	"github.com/pion/logging"
)

// ErrNoAddress is returned by NewDevice when no address is configured.
var ErrNoAddress = errors.New("ptm215b: device address required")

// Config configures a Device. It is read once by NewDevice.
type Config struct {
	// Address is the switch's static source address. Required.
	Address advertisement.Address

	// Key is the switch's security key. The all-zero key disables
	// signature verification.
	Key [telegram.KeySize]byte

	// InitialSequence restores the last accepted sequence counter.
	InitialSequence uint32

	// Observers maps buttons to the observer notified of their state.
	// Buttons without an observer are skipped.
	Observers map[Button]Observer

	// KeySink receives keys from accepted commissioning telegrams.
	// Optional.
	KeySink KeySink

	// AdoptCommissionedKey makes the device verify subsequent data
	// telegrams with the key from an accepted commissioning telegram.
	AdoptCommissionedKey bool

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// State is a snapshot of the device's authoritative state.
type State struct {
	Sequence uint32
	Status   telegram.SwitchStatus
}

// Device processes advertisements for one PTM215B switch.
// It is safe for concurrent use; advertisements are processed one at a time.
type Device struct {
	address   advertisement.Address
	observers [numButtons]Observer
	keySink   KeySink
	adopt     bool
	log       logging.LeveledLogger

	// mu serializes processing so that the freshness check and the state
	// commit cannot interleave between two advertisements.
	mu          sync.Mutex
	guard       *freshness.Guard
	status      telegram.SwitchStatus
	verifier    *crypto.TelegramVerifier
	verifierErr error
}

// NewDevice creates a device from config.
func NewDevice(config Config) (*Device, error) {
	if config.Address.IsZero() {
		return nil, ErrNoAddress
	}

	d := &Device{
		address: config.Address,
		keySink: config.KeySink,
		adopt:   config.AdoptCommissionedKey,
		guard:   freshness.NewGuardWithValue(config.InitialSequence),
	}

	for b, o := range config.Observers {
		if int(b) < numButtons {
			d.observers[b] = o
		}
	}

	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("ptm215b")
	}

	d.setKey(config.Key)

	return d, nil
}

// setKey installs the verifier for key. A failed key setup is kept and
// turns every data telegram into a SignatureMismatch.
// Caller must hold d.mu or be the constructor.
func (d *Device) setKey(key [telegram.KeySize]byte) {
	v, err := crypto.NewTelegramVerifier(key)
	if err != nil {
		d.verifier = nil
		d.verifierErr = err
		if d.log != nil {
			d.log.Errorf("%s: key setup failed: %v", d.address, err)
		}
		return
	}
	d.verifier = v
	d.verifierErr = nil

	if d.log != nil && !v.Enabled() {
		d.log.Warnf("%s: no security key configured, signatures are not verified", d.address)
	}
}

// Address returns the switch address the device is bound to.
func (d *Device) Address() advertisement.Address {
	return d.address
}

// Sequence returns the last accepted sequence counter.
func (d *Device) Sequence() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.guard.Last()
}

// Status returns the switch status of the last accepted data telegram.
func (d *Device) Status() telegram.SwitchStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// State returns the sequence counter and switch status together.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{Sequence: d.guard.Last(), Status: d.status}
}

// AuthenticationEnabled reports whether data telegram signatures are checked.
func (d *Device) AuthenticationEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.verifier == nil || d.verifier.Enabled()
}

// HandleDevice processes every manufacturer data record of an advertisement
// in order and stops at the first accepted one. When none is accepted, the
// rejection that got furthest through the pipeline is returned.
func (d *Device) HandleDevice(adv advertisement.Advertisement) Result {
	if adv.Address != d.address {
		return Result{Outcome: UnmatchedAddress}
	}

	best := Result{Outcome: UnmatchedManufacturer}

	for _, md := range adv.ManufacturerData {
		res := d.HandleAdvertisement(adv.Address, md.CompanyID, md.Data)
		if res.Accepted() {
			return res
		}
		if res.Outcome.rank() > best.Outcome.rank() {
			best = res
		}
	}
	return best
}

// HandleAdvertisement processes one manufacturer data record received from
// address. It never fails; every rejection is reported in the Result and
// leaves the device state unchanged.
func (d *Device) HandleAdvertisement(address advertisement.Address, manufacturerID uint16, payload []byte) Result {
	if address != d.address {
		if d.log != nil {
			d.log.Tracef("%s: advertisement from %s ignored", d.address, address)
		}
		return Result{Outcome: UnmatchedAddress}
	}

	if manufacturerID != telegram.ManufacturerID {
		if d.log != nil {
			d.log.Tracef("%s: manufacturer 0x%04X ignored, 0x%04X required", d.address, manufacturerID, telegram.ManufacturerID)
		}
		return Result{Outcome: UnmatchedManufacturer}
	}

	tg, err := telegram.Decode(payload)
	if err != nil {
		if d.log != nil {
			d.log.Debugf("%s: payload of %d bytes ignored: %v", d.address, len(payload), err)
		}
		return Result{Outcome: UnrecognizedPayload}
	}

	switch t := tg.(type) {
	case *telegram.DataTelegram:
		return d.handleData(t)
	case *telegram.CommissioningTelegram:
		return d.handleCommissioning(t)
	default:
		return Result{Outcome: UnrecognizedPayload}
	}
}

func (d *Device) handleData(t *telegram.DataTelegram) Result {
	d.mu.Lock()

	if res, ok := d.checkFreshness(t); !ok {
		d.mu.Unlock()
		return res
	}

	if err := d.verify(t); err != nil {
		d.mu.Unlock()
		if d.log != nil {
			d.log.Warnf("%s: sequence %d rejected: %v", d.address, t.SequenceCounter, err)
		}
		return Result{Outcome: SignatureMismatch, Telegram: t}
	}

	d.guard.Accept(t.SequenceCounter)
	d.status = t.Status
	observers := d.observers

	d.mu.Unlock()

	if d.log != nil {
		d.log.Infof("%s: %s", d.address, t)
	}

	for i, o := range observers {
		if o != nil {
			o.PublishState(Button(i).State(t.Status))
		}
	}

	return Result{Outcome: Accepted, Telegram: t}
}

func (d *Device) handleCommissioning(t *telegram.CommissioningTelegram) Result {
	d.mu.Lock()

	if res, ok := d.checkFreshness(t); !ok {
		d.mu.Unlock()
		return res
	}

	d.guard.Accept(t.SequenceCounter)
	if d.adopt {
		d.setKey(t.SecurityKey)
	}

	d.mu.Unlock()

	learned := LearnedKey{
		Device:        d.address,
		SourceAddress: advertisement.Address(sourceAddressDisplayOrder(t.SourceAddress)),
		Key:           t.SecurityKey,
		Sequence:      t.SequenceCounter,
	}

	if d.log != nil {
		d.log.Infof("%s: commissioning telegram, sequence %d, source %s", d.address, t.SequenceCounter, learned.SourceAddress)
	}

	if d.keySink != nil {
		if err := d.keySink.LearnKey(learned); err != nil && d.log != nil {
			d.log.Errorf("%s: storing learned key failed: %v", d.address, err)
		}
	}

	return Result{Outcome: Accepted, Telegram: t}
}

// checkFreshness runs the debounce and replay checks. Caller must hold d.mu.
func (d *Device) checkFreshness(t telegram.Telegram) (Result, bool) {
	switch d.guard.Check(t.Sequence()) {
	case freshness.Duplicate:
		if d.log != nil {
			d.log.Debugf("%s: debouncing sequence %d", d.address, t.Sequence())
		}
		return Result{Outcome: Duplicate, Telegram: t}, false
	case freshness.Replayed:
		if d.log != nil {
			d.log.Warnf("%s: stale sequence %d, last accepted %d", d.address, t.Sequence(), d.guard.Last())
		}
		return Result{Outcome: Replayed, Telegram: t}, false
	default:
		return Result{}, true
	}
}

// verify checks the data telegram signature. Caller must hold d.mu.
func (d *Device) verify(t *telegram.DataTelegram) error {
	if d.verifier == nil {
		return d.verifierErr
	}
	return d.verifier.Verify(d.address, t.SequenceCounter, t.StatusByte, t.Signature)
}

// sourceAddressDisplayOrder converts the little-endian static source address
// of a commissioning telegram to display order.
func sourceAddressDisplayOrder(wire [telegram.AddressSize]byte) [telegram.AddressSize]byte {
	var a [telegram.AddressSize]byte
	for i := range wire {
		a[i] = wire[telegram.AddressSize-1-i]
	}
	return a
}
