package config

import "errors"

// Validation errors. Security key messages follow the key format printed
// on the switch label.
var (
	ErrSecurityKeyParts  = errors.New("config: security key must consist of 16 : (colon) separated parts")
	ErrSecurityKeyFormat = errors.New("config: security key must be format XX:XX:XX:XX:XX:XX:XX:XX:XX:XX:XX:XX:XX:XX:XX:XX")
	ErrSecurityKeyHex    = errors.New("config: security key parts must be hexadecimal values from 00 to FF")

	ErrInvalidLogLevel   = errors.New("config: invalid log level")
	ErrNoDevices         = errors.New("config: no devices configured")
	ErrDuplicateDevice   = errors.New("config: duplicate device")
	ErrInvalidMACAddress = errors.New("config: invalid mac_address")
	ErrInvalidButton     = errors.New("config: invalid button")
	ErrInvalidQoS        = errors.New("config: mqtt qos must be 0, 1 or 2")
)
