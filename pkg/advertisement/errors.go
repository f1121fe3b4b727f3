package advertisement

import "errors"

// Advertisement errors.
var (
	ErrInvalidAddress = errors.New("advertisement: invalid address")
	ErrTruncatedAD    = errors.New("advertisement: truncated AD structure")
	ErrFrameTooShort  = errors.New("advertisement: frame too short")
	ErrFrameTooLong   = errors.New("advertisement: frame too long")
	ErrInvalidCapture = errors.New("advertisement: invalid capture line")
	ErrRecordTooLong  = errors.New("advertisement: manufacturer data too long")
)

// BLE AD structure constants.
const (
	// ADTypeManufacturerData is the AD type for manufacturer specific data.
	ADTypeManufacturerData = 0xFF

	// MaxFrameSize bounds an ingest frame: address plus an extended
	// advertising payload.
	MaxFrameSize = AddressSize + 255

	// maxADData is the most data one AD structure can carry after its type byte.
	maxADData = 254
)
