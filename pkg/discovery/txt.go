package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// TXT record keys.
const (
	TXTKeyVersion = "version"
	TXTKeyDevices = "devices"
)

// TXTVersion is the TXT schema version written by this package.
const TXTVersion = 1

// BridgeTXT is the TXT record of a bridge advertisement.
type BridgeTXT struct {
	// Version of the TXT schema.
	Version int

	// Devices is the number of configured switches.
	Devices int
}

// Encode returns the TXT record strings.
func (t BridgeTXT) Encode() []string {
	version := t.Version
	if version == 0 {
		version = TXTVersion
	}
	return []string{
		TXTKeyVersion + "=" + strconv.Itoa(version),
		TXTKeyDevices + "=" + strconv.Itoa(t.Devices),
	}
}

// ParseTXT parses raw TXT record strings into a map.
// Entries without '=' are ignored.
func ParseTXT(records []string) map[string]string {
	result := make(map[string]string)
	for _, record := range records {
		if idx := strings.IndexByte(record, '='); idx > 0 {
			result[record[:idx]] = record[idx+1:]
		}
	}
	return result
}

// ParseBridgeTXT parses the TXT record of a bridge advertisement.
func ParseBridgeTXT(records []string) (BridgeTXT, error) {
	var t BridgeTXT
	m := ParseTXT(records)

	v, ok := m[TXTKeyVersion]
	if !ok {
		return t, fmt.Errorf("%w: missing %s", ErrInvalidTXTRecord, TXTKeyVersion)
	}
	version, err := strconv.Atoi(v)
	if err != nil {
		return t, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyVersion, v)
	}
	if version != TXTVersion {
		return t, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	t.Version = version

	if d, ok := m[TXTKeyDevices]; ok {
		devices, err := strconv.Atoi(d)
		if err != nil || devices < 0 {
			return t, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyDevices, d)
		}
		t.Devices = devices
	}

	return t, nil
}
