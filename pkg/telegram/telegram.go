// Package telegram decodes the manufacturer-specific payloads broadcast by
// EnOcean PTM215B switches.
//
// Two fixed layouts exist and are told apart by length alone:
//
//	Data telegram (9 bytes):
//	  Sequence Counter (4, LE) || Switch Status (1) || Security Signature (4)
//
//	Commissioning telegram (26 bytes):
//	  Sequence Counter (4, LE) || Security Key (16) || Static Source Address (6)
//
// Every other length is reported as ErrUnrecognized.
package telegram

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Kind identifies the telegram layout.
type Kind uint8

const (
	// KindData is a button event carrying a security signature.
	KindData Kind = iota + 1

	// KindCommissioning carries the device key in the clear during pairing.
	KindCommissioning
)

// String returns the telegram kind name.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindCommissioning:
		return "commissioning"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Telegram is implemented by *DataTelegram and *CommissioningTelegram.
type Telegram interface {
	// Kind returns the telegram layout.
	Kind() Kind

	// Sequence returns the sequence counter used for freshness checks.
	Sequence() uint32

	// Size returns the encoded size in bytes.
	Size() int

	// EncodeTo writes the wire form into buf.
	EncodeTo(buf []byte) (int, error)
}

// DataTelegram reports a button action.
type DataTelegram struct {
	SequenceCounter uint32
	Status          SwitchStatus

	// StatusByte is the raw switch status byte, reserved bits included.
	// The signature covers this exact byte, so it is kept alongside Status.
	StatusByte uint8

	Signature [SignatureSize]byte
}

// NewDataTelegram builds a data telegram from its fields.
func NewDataTelegram(seq uint32, status SwitchStatus, sig [SignatureSize]byte) *DataTelegram {
	return &DataTelegram{
		SequenceCounter: seq,
		Status:          status,
		StatusByte:      status.Byte(),
		Signature:       sig,
	}
}

// Kind returns KindData.
func (t *DataTelegram) Kind() Kind { return KindData }

// Sequence returns the sequence counter.
func (t *DataTelegram) Sequence() uint32 { return t.SequenceCounter }

// Size returns DataTelegramSize.
func (t *DataTelegram) Size() int { return DataTelegramSize }

// Encode serializes the telegram to its 9-byte wire form.
func (t *DataTelegram) Encode() []byte {
	buf := make([]byte, DataTelegramSize)
	t.EncodeTo(buf)
	return buf
}

// EncodeTo serializes the telegram into buf.
func (t *DataTelegram) EncodeTo(buf []byte) (int, error) {
	if len(buf) < DataTelegramSize {
		return 0, ErrBufferTooSmall
	}
	binary.LittleEndian.PutUint32(buf[dataOffsetSequence:], t.SequenceCounter)
	buf[dataOffsetStatus] = t.StatusByte
	copy(buf[dataOffsetSignature:DataTelegramSize], t.Signature[:])
	return DataTelegramSize, nil
}

// String renders the telegram for logs.
func (t *DataTelegram) String() string {
	return fmt.Sprintf("Data Telegram: sequence_counter: %d switch_status: %s", t.SequenceCounter, t.Status)
}

// CommissioningTelegram is sent while the switch is in commissioning mode.
// It is authenticated by freshness only; no key exists yet to check a signature.
type CommissioningTelegram struct {
	SequenceCounter uint32
	SecurityKey     [KeySize]byte
	SourceAddress   [AddressSize]byte
}

// Kind returns KindCommissioning.
func (t *CommissioningTelegram) Kind() Kind { return KindCommissioning }

// Sequence returns the sequence counter.
func (t *CommissioningTelegram) Sequence() uint32 { return t.SequenceCounter }

// Size returns CommissioningTelegramSize.
func (t *CommissioningTelegram) Size() int { return CommissioningTelegramSize }

// Encode serializes the telegram to its 26-byte wire form.
func (t *CommissioningTelegram) Encode() []byte {
	buf := make([]byte, CommissioningTelegramSize)
	t.EncodeTo(buf)
	return buf
}

// EncodeTo serializes the telegram into buf.
func (t *CommissioningTelegram) EncodeTo(buf []byte) (int, error) {
	if len(buf) < CommissioningTelegramSize {
		return 0, ErrBufferTooSmall
	}
	binary.LittleEndian.PutUint32(buf[commOffsetSequence:], t.SequenceCounter)
	copy(buf[commOffsetKey:commOffsetAddress], t.SecurityKey[:])
	copy(buf[commOffsetAddress:CommissioningTelegramSize], t.SourceAddress[:])
	return CommissioningTelegramSize, nil
}

// String renders the telegram for logs. The key is not printed.
func (t *CommissioningTelegram) String() string {
	return fmt.Sprintf("Commissioning Telegram: sequence_counter: %d source_address: %s",
		t.SequenceCounter, hex.EncodeToString(t.SourceAddress[:]))
}

// Decode interprets a manufacturer payload as a data telegram, then as a
// commissioning telegram. Only the length is inspected before decoding, so
// no input can cause an out-of-range read.
func Decode(payload []byte) (Telegram, error) {
	switch len(payload) {
	case DataTelegramSize:
		return decodeData(payload), nil
	case CommissioningTelegramSize:
		return decodeCommissioning(payload), nil
	default:
		return nil, ErrUnrecognized
	}
}

// DecodeData decodes a payload that must be a data telegram.
func DecodeData(payload []byte) (*DataTelegram, error) {
	if len(payload) != DataTelegramSize {
		return nil, ErrUnrecognized
	}
	return decodeData(payload), nil
}

// DecodeCommissioning decodes a payload that must be a commissioning telegram.
func DecodeCommissioning(payload []byte) (*CommissioningTelegram, error) {
	if len(payload) != CommissioningTelegramSize {
		return nil, ErrUnrecognized
	}
	return decodeCommissioning(payload), nil
}

func decodeData(data []byte) *DataTelegram {
	t := &DataTelegram{
		SequenceCounter: binary.LittleEndian.Uint32(data[dataOffsetSequence:]),
		StatusByte:      data[dataOffsetStatus],
	}
	t.Status = ParseSwitchStatus(t.StatusByte)
	copy(t.Signature[:], data[dataOffsetSignature:DataTelegramSize])
	return t
}

func decodeCommissioning(data []byte) *CommissioningTelegram {
	t := &CommissioningTelegram{
		SequenceCounter: binary.LittleEndian.Uint32(data[commOffsetSequence:]),
	}
	copy(t.SecurityKey[:], data[commOffsetKey:commOffsetAddress])
	copy(t.SourceAddress[:], data[commOffsetAddress:CommissioningTelegramSize])
	return t
}
