package advertisement

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseCaptureLine parses one line of a capture file:
//
//	AA:BB:CC:DD:EE:FF 03DA 5D04000011B2FA88FF
//
// Address, company identifier (hex) and manufacturer data (hex). Further
// identifier/data pairs may follow on the same line for advertisements
// carrying more than one record.
func ParseCaptureLine(line string) (Advertisement, error) {
	var adv Advertisement

	fields := strings.Fields(line)
	if len(fields) < 3 || len(fields)%2 != 1 {
		return adv, fmt.Errorf("%w: %q", ErrInvalidCapture, line)
	}

	addr, err := ParseAddress(fields[0])
	if err != nil {
		return adv, err
	}
	adv.Address = addr

	for i := 1; i < len(fields); i += 2 {
		id, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(fields[i]), "0x"), 16, 16)
		if err != nil {
			return adv, fmt.Errorf("%w: company id %q", ErrInvalidCapture, fields[i])
		}
		data, err := hex.DecodeString(fields[i+1])
		if err != nil {
			return adv, fmt.Errorf("%w: data %q", ErrInvalidCapture, fields[i+1])
		}
		adv.ManufacturerData = append(adv.ManufacturerData, ManufacturerData{
			CompanyID: uint16(id),
			Data:      data,
		})
	}

	return adv, nil
}

// FormatCaptureLine is the inverse of ParseCaptureLine.
func FormatCaptureLine(adv Advertisement) string {
	var sb strings.Builder
	sb.WriteString(adv.Address.String())
	for _, r := range adv.ManufacturerData {
		fmt.Fprintf(&sb, " %04X %s", r.CompanyID, strings.ToUpper(hex.EncodeToString(r.Data)))
	}
	return sb.String()
}

// ReadCapture calls fn for every advertisement in r. Blank lines and lines
// starting with '#' are skipped. Parsing stops at the first malformed line
// or the first error returned by fn.
func ReadCapture(r io.Reader, fn func(lineNo int, adv Advertisement) error) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		adv, err := ParseCaptureLine(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := fn(lineNo, adv); err != nil {
			return err
		}
	}
	return scanner.Err()
}
