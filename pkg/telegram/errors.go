package telegram

import "errors"

// Telegram layer errors.
var (
	// ErrUnrecognized is returned when a payload matches neither telegram layout.
	// Most advertisements on the air end up here; it is not a fault.
	ErrUnrecognized = errors.New("telegram: unrecognized payload length")

	// ErrBufferTooSmall is returned by EncodeTo when the destination is shorter
	// than the encoded telegram.
	ErrBufferTooSmall = errors.New("telegram: buffer too small")
)

// Wire format constants for PTM215B manufacturer-specific data.
const (
	// ManufacturerID is the Bluetooth SIG company identifier assigned to EnOcean.
	ManufacturerID uint16 = 0x03DA

	// DataTelegramSize is the manufacturer payload size of a data telegram:
	// Sequence Counter (4) + Switch Status (1) + Security Signature (4) = 9
	DataTelegramSize = 9

	// CommissioningTelegramSize is the manufacturer payload size of a commissioning telegram:
	// Sequence Counter (4) + Security Key (16) + Static Source Address (6) = 26
	CommissioningTelegramSize = 26

	// SequenceCounterSize is the size of the little-endian sequence counter.
	SequenceCounterSize = 4

	// SignatureSize is the size of the truncated AES-CCM tag carried by data telegrams.
	SignatureSize = 4

	// KeySize is the size of the AES-128 security key.
	KeySize = 16

	// AddressSize is the size of the static source address.
	AddressSize = 6
)

// Data telegram field offsets.
const (
	dataOffsetSequence  = 0
	dataOffsetStatus    = 4
	dataOffsetSignature = 5
)

// Commissioning telegram field offsets.
const (
	commOffsetSequence = 0
	commOffsetKey      = 4
	commOffsetAddress  = 20
)
