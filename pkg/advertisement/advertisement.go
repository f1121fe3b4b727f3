// Package advertisement models the BLE advertisements a scanner hands to the
// telegram decoder: a device address and its manufacturer specific data
// records. It also provides the frame format of the UDP ingest link and the
// text capture format used for replays.
package advertisement

import (
	"encoding/binary"
	"fmt"
)

// ManufacturerData is one manufacturer specific data AD structure.
type ManufacturerData struct {
	// CompanyID is the Bluetooth SIG company identifier (little-endian on the air).
	CompanyID uint16

	// Data is the payload following the company identifier.
	Data []byte
}

// Advertisement is a received advertisement reduced to what the decoder needs.
type Advertisement struct {
	Address          Address
	ManufacturerData []ManufacturerData
}

// ParseADStructures walks the AD structures of an advertising payload and
// returns the manufacturer specific data records in order. Other AD types
// are skipped. A zero length byte ends the significant part of the payload.
func ParseADStructures(raw []byte) ([]ManufacturerData, error) {
	var records []ManufacturerData

	offset := 0
	for offset < len(raw) {
		length := int(raw[offset])
		offset++

		if length == 0 {
			break
		}
		if offset+length > len(raw) {
			return nil, ErrTruncatedAD
		}

		adType := raw[offset]
		body := raw[offset+1 : offset+length]
		offset += length

		if adType != ADTypeManufacturerData || len(body) < 2 {
			continue
		}

		data := make([]byte, len(body)-2)
		copy(data, body[2:])
		records = append(records, ManufacturerData{
			CompanyID: binary.LittleEndian.Uint16(body[0:2]),
			Data:      data,
		})
	}

	return records, nil
}

// EncodeADStructures encodes manufacturer data records as AD structures.
func EncodeADStructures(records []ManufacturerData) ([]byte, error) {
	var out []byte
	for _, r := range records {
		if len(r.Data)+2 > maxADData {
			return nil, fmt.Errorf("%w: %d bytes", ErrRecordTooLong, len(r.Data))
		}
		out = append(out, byte(len(r.Data)+3), ADTypeManufacturerData)
		out = binary.LittleEndian.AppendUint16(out, r.CompanyID)
		out = append(out, r.Data...)
	}
	return out, nil
}

// EncodeFrame encodes an advertisement for the UDP ingest link:
// Address (6 bytes, display order) || AD structures.
func EncodeFrame(adv Advertisement) ([]byte, error) {
	ad, err := EncodeADStructures(adv.ManufacturerData)
	if err != nil {
		return nil, err
	}
	if AddressSize+len(ad) > MaxFrameSize {
		return nil, ErrFrameTooLong
	}

	frame := make([]byte, 0, AddressSize+len(ad))
	frame = append(frame, adv.Address[:]...)
	frame = append(frame, ad...)
	return frame, nil
}

// DecodeFrame decodes a UDP ingest frame.
func DecodeFrame(frame []byte) (Advertisement, error) {
	var adv Advertisement

	if len(frame) < AddressSize {
		return adv, ErrFrameTooShort
	}
	if len(frame) > MaxFrameSize {
		return adv, ErrFrameTooLong
	}

	copy(adv.Address[:], frame[:AddressSize])

	records, err := ParseADStructures(frame[AddressSize:])
	if err != nil {
		return adv, err
	}
	adv.ManufacturerData = records
	return adv, nil
}
