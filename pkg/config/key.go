package config

import (
	"encoding/hex"
	"strings"

	"github.com/majkrzak/esphome-ptm215b/pkg/telegram"
)

// ParseSecurityKey parses a key written as 16 colon separated hex octets,
// e.g. "3D:DA:31:AD:44:76:7A:E3:CE:56:DC:E2:B3:CE:2A:BB".
func ParseSecurityKey(s string) ([telegram.KeySize]byte, error) {
	var key [telegram.KeySize]byte

	parts := strings.Split(s, ":")
	if len(parts) != telegram.KeySize {
		return key, ErrSecurityKeyParts
	}
	for _, p := range parts {
		if len(p) != 2 {
			return key, ErrSecurityKeyFormat
		}
	}
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil {
			return key, ErrSecurityKeyHex
		}
		key[i] = b[0]
	}
	return key, nil
}

// FormatSecurityKey renders a key in the form accepted by ParseSecurityKey.
func FormatSecurityKey(key [telegram.KeySize]byte) string {
	var sb strings.Builder
	for i, b := range key {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(strings.ToUpper(hex.EncodeToString([]byte{b})))
	}
	return sb.String()
}
