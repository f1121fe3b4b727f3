package telegram

import "strings"

// Switch status bit positions.
const (
	statusPress uint8 = 1 << 0
	statusA0    uint8 = 1 << 1
	statusA1    uint8 = 1 << 2
	statusB0    uint8 = 1 << 3
	statusB1    uint8 = 1 << 4

	// statusMask covers the defined bits; bits 5-7 are reserved.
	statusMask = statusPress | statusA0 | statusA1 | statusB0 | statusB1
)

// SwitchStatus is the decoded switch status field of a data telegram.
// Any combination of the button bits may be set at once.
type SwitchStatus struct {
	// Press is true for a press action and false for a release.
	Press bool

	A0 bool
	A1 bool
	B0 bool
	B1 bool
}

// ParseSwitchStatus decodes a switch status byte. Reserved bits are ignored.
func ParseSwitchStatus(b uint8) SwitchStatus {
	return SwitchStatus{
		Press: b&statusPress != 0,
		A0:    b&statusA0 != 0,
		A1:    b&statusA1 != 0,
		B0:    b&statusB0 != 0,
		B1:    b&statusB1 != 0,
	}
}

// Byte encodes the status as it appears on the wire, reserved bits zero.
func (s SwitchStatus) Byte() uint8 {
	var b uint8
	if s.Press {
		b |= statusPress
	}
	if s.A0 {
		b |= statusA0
	}
	if s.A1 {
		b |= statusA1
	}
	if s.B0 {
		b |= statusB0
	}
	if s.B1 {
		b |= statusB1
	}
	return b
}

// String renders the status as "Press A0 B1" or "Release".
func (s SwitchStatus) String() string {
	var sb strings.Builder
	if s.Press {
		sb.WriteString("Press")
	} else {
		sb.WriteString("Release")
	}
	if s.A0 {
		sb.WriteString(" A0")
	}
	if s.A1 {
		sb.WriteString(" A1")
	}
	if s.B0 {
		sb.WriteString(" B0")
	}
	if s.B1 {
		sb.WriteString(" B1")
	}
	return sb.String()
}
