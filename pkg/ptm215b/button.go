package ptm215b

import (
	"fmt"
	"strings"

	"github.com/majkrzak/esphome-ptm215b/pkg/advertisement"
	"github.com/majkrzak/esphome-ptm215b/pkg/telegram"
)

// Button selects which switch status bit an observer follows.
type Button uint8

const (
	// ButtonBar follows the press/release bit of any action.
	ButtonBar Button = iota
	ButtonA0
	ButtonA1
	ButtonB0
	ButtonB1

	numButtons = 5
)

// Buttons lists all buttons in notification order.
var Buttons = []Button{ButtonBar, ButtonA0, ButtonA1, ButtonB0, ButtonB1}

// String returns the configuration name of the button.
func (b Button) String() string {
	switch b {
	case ButtonBar:
		return "bar"
	case ButtonA0:
		return "a0"
	case ButtonA1:
		return "a1"
	case ButtonB0:
		return "b0"
	case ButtonB1:
		return "b1"
	default:
		return fmt.Sprintf("Button(%d)", uint8(b))
	}
}

// ParseButton parses a button name as printed by String.
func ParseButton(s string) (Button, error) {
	for _, b := range Buttons {
		if strings.EqualFold(s, b.String()) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("ptm215b: unknown button %q", s)
}

// State extracts the button's bit from a switch status.
func (b Button) State(s telegram.SwitchStatus) bool {
	switch b {
	case ButtonBar:
		return s.Press
	case ButtonA0:
		return s.A0
	case ButtonA1:
		return s.A1
	case ButtonB0:
		return s.B0
	case ButtonB1:
		return s.B1
	default:
		return false
	}
}

// Observer receives a button state for every accepted data telegram.
type Observer interface {
	PublishState(state bool)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(state bool)

// PublishState calls f(state).
func (f ObserverFunc) PublishState(state bool) { f(state) }

// LearnedKey is surfaced for every accepted commissioning telegram.
type LearnedKey struct {
	// Device is the address of the device that received the telegram.
	Device advertisement.Address

	// SourceAddress is the static source address carried in the telegram,
	// converted to display order.
	SourceAddress advertisement.Address

	// Key is the security key transmitted by the switch.
	Key [telegram.KeySize]byte

	// Sequence is the telegram's sequence counter.
	Sequence uint32
}

// KeySink stores keys learned from commissioning telegrams.
type KeySink interface {
	LearnKey(k LearnedKey) error
}

// KeySinkFunc adapts a function to KeySink.
type KeySinkFunc func(k LearnedKey) error

// LearnKey calls f(k).
func (f KeySinkFunc) LearnKey(k LearnedKey) error { return f(k) }
