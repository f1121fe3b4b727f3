package advertisement

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressSize is the size of a Bluetooth device address.
const AddressSize = 6

// Address is a 6-byte Bluetooth device address in display order: the
// first byte is the most significant (AA in AA:BB:CC:DD:EE:FF).
type Address [AddressSize]byte

// ParseAddress parses "AA:BB:CC:DD:EE:FF". Dashes are accepted as separators.
func ParseAddress(s string) (Address, error) {
	var a Address

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != AddressSize {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	for i, p := range parts {
		if len(p) != 2 {
			return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		a[i] = b[0]
	}
	return a, nil
}

// AddressFromUint64 builds an address from its 48-bit integer form.
func AddressFromUint64(v uint64) Address {
	var a Address
	for i := AddressSize - 1; i >= 0; i-- {
		a[i] = byte(v)
		v >>= 8
	}
	return a
}

// Uint64 returns the 48-bit integer form of the address.
func (a Address) Uint64() uint64 {
	var v uint64
	for _, b := range a {
		v = v<<8 | uint64(b)
	}
	return v
}

// Reversed returns the address least significant byte first, the order used
// on the air and in the telegram nonce.
func (a Address) Reversed() [AddressSize]byte {
	var r [AddressSize]byte
	for i := range a {
		r[i] = a[AddressSize-1-i]
	}
	return r
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String formats the address as AA:BB:CC:DD:EE:FF.
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Compact formats the address as aabbccddeeff, suitable for topics and subjects.
func (a Address) Compact() string {
	return hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
