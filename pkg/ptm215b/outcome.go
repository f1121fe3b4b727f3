package ptm215b

import (
	"errors"
	"fmt"

	"github.com/majkrzak/esphome-ptm215b/pkg/telegram"
)

// Rejection errors returned by Outcome.Err.
var (
	ErrUnmatchedAddress      = errors.New("ptm215b: address does not match device")
	ErrUnmatchedManufacturer = errors.New("ptm215b: manufacturer is not EnOcean")
	ErrUnrecognizedPayload   = errors.New("ptm215b: unrecognized payload")
	ErrDuplicate             = errors.New("ptm215b: duplicate telegram")
	ErrReplayed              = errors.New("ptm215b: replayed telegram")
	ErrSignatureMismatch     = errors.New("ptm215b: signature mismatch")
)

// Outcome classifies the handling of one advertisement.
type Outcome uint8

const (
	// Accepted means the telegram passed every check and state was updated.
	Accepted Outcome = iota

	// UnmatchedAddress means the advertisement came from another device.
	UnmatchedAddress

	// UnmatchedManufacturer means the record is not EnOcean manufacturer data.
	UnmatchedManufacturer

	// UnrecognizedPayload means the payload length fits neither telegram layout.
	UnrecognizedPayload

	// Duplicate means the sequence counter equals the last accepted one.
	Duplicate

	// Replayed means the sequence counter is lower than the last accepted one.
	Replayed

	// SignatureMismatch means the data telegram failed authentication.
	SignatureMismatch
)

// Outcomes lists every outcome in declaration order.
var Outcomes = []Outcome{
	Accepted,
	UnmatchedAddress,
	UnmatchedManufacturer,
	UnrecognizedPayload,
	Duplicate,
	Replayed,
	SignatureMismatch,
}

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case UnmatchedAddress:
		return "unmatched_address"
	case UnmatchedManufacturer:
		return "unmatched_manufacturer"
	case UnrecognizedPayload:
		return "unrecognized_payload"
	case Duplicate:
		return "duplicate"
	case Replayed:
		return "replayed"
	case SignatureMismatch:
		return "signature_mismatch"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// Err returns the sentinel error for a rejection, nil for Accepted.
func (o Outcome) Err() error {
	switch o {
	case UnmatchedAddress:
		return ErrUnmatchedAddress
	case UnmatchedManufacturer:
		return ErrUnmatchedManufacturer
	case UnrecognizedPayload:
		return ErrUnrecognizedPayload
	case Duplicate:
		return ErrDuplicate
	case Replayed:
		return ErrReplayed
	case SignatureMismatch:
		return ErrSignatureMismatch
	default:
		return nil
	}
}

// IsSecurityRelevant reports whether the rejection may indicate an attack
// (replay or forgery) rather than ordinary radio traffic.
func (o Outcome) IsSecurityRelevant() bool {
	return o == Replayed || o == SignatureMismatch
}

// rank orders rejections by how far the advertisement got through the
// pipeline. HandleDevice reports the highest ranked one.
func (o Outcome) rank() int {
	switch o {
	case Accepted:
		return 100
	case SignatureMismatch:
		return 6
	case Replayed:
		return 5
	case Duplicate:
		return 4
	case UnrecognizedPayload:
		return 3
	case UnmatchedManufacturer:
		return 2
	case UnmatchedAddress:
		return 1
	default:
		return 0
	}
}

// Result is returned for every handled advertisement.
type Result struct {
	Outcome Outcome

	// Telegram is the decoded telegram, nil when decoding was not reached
	// or failed.
	Telegram telegram.Telegram
}

// Accepted reports whether the telegram was accepted.
func (r Result) Accepted() bool {
	return r.Outcome == Accepted
}

// Err returns the rejection error, nil if accepted.
func (r Result) Err() error {
	return r.Outcome.Err()
}
