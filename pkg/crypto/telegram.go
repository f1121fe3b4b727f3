// Telegram authentication for PTM215B data telegrams.
//
// The switch authenticates the advertisement it sends with AES-128-CCM in
// authentication-only mode: the plaintext is empty and the reconstructed
// advertisement bytes are the associated data. The 4-byte tag is carried in
// the telegram as the security signature.

package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Telegram authentication constants.
const (
	// TelegramKeySize is the size of a PTM215B security key.
	TelegramKeySize = 16

	// TelegramNonceSize is the AES-CCM nonce size used by PTM215B.
	TelegramNonceSize = 13

	// TelegramTagSize is the size of the security signature.
	TelegramTagSize = 4

	// TelegramAuthDataSize is the size of the reconstructed advertisement.
	TelegramAuthDataSize = 9

	// adLength is the AD structure length byte of a data telegram advertisement:
	// AD Type (1) + Manufacturer ID (2) + Sequence Counter (4) + Switch Status (1) + Signature (4) = 12
	adLength = 0x0C

	// adTypeManufacturerData is the BLE AD type for manufacturer specific data.
	adTypeManufacturerData = 0xFF

	// enoceanManufacturerID is EnOcean's Bluetooth SIG company identifier.
	enoceanManufacturerID uint16 = 0x03DA
)

// ErrSignatureMismatch is returned when a telegram signature does not verify.
var ErrSignatureMismatch = errors.New("telegram auth: signature mismatch")

// IsZeroKey reports whether key is the all-zero value that disables
// authentication.
func IsZeroKey(key [TelegramKeySize]byte) bool {
	var zero [TelegramKeySize]byte
	return key == zero
}

// BuildTelegramNonce constructs the 13-byte nonce for a data telegram.
//
// Format: Source Address (6 bytes, least significant byte first) ||
// Sequence Counter (4 bytes LE) || 0x00 0x00 0x00
//
// address is in display order, most significant byte first
// (E2:15:00:00:19:B8 is {0xE2, 0x15, 0x00, 0x00, 0x19, 0xB8}).
func BuildTelegramNonce(address [6]byte, seq uint32) [TelegramNonceSize]byte {
	var nonce [TelegramNonceSize]byte
	for i := 0; i < 6; i++ {
		nonce[i] = address[5-i]
	}
	binary.LittleEndian.PutUint32(nonce[6:10], seq)
	return nonce
}

// BuildTelegramAuthData reconstructs the advertisement bytes covered by the
// signature.
//
// Format: Length (0x0C) || Type (0xFF) || Manufacturer ID (0x03DA, LE) ||
// Sequence Counter (4 bytes LE) || Switch Status (1)
func BuildTelegramAuthData(seq uint32, status uint8) [TelegramAuthDataSize]byte {
	var ad [TelegramAuthDataSize]byte
	ad[0] = adLength
	ad[1] = adTypeManufacturerData
	binary.LittleEndian.PutUint16(ad[2:4], enoceanManufacturerID)
	binary.LittleEndian.PutUint32(ad[4:8], seq)
	ad[8] = status
	return ad
}

// TelegramVerifier checks data telegram signatures for one security key.
type TelegramVerifier struct {
	ccm      *CCM
	disabled bool
}

// NewTelegramVerifier creates a verifier for key. The all-zero key yields a
// verifier that accepts every signature.
func NewTelegramVerifier(key [TelegramKeySize]byte) (*TelegramVerifier, error) {
	if IsZeroKey(key) {
		return &TelegramVerifier{disabled: true}, nil
	}

	ccm, err := NewCCM(key[:], TelegramNonceSize, TelegramTagSize)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: key setup: %w", err)
	}
	return &TelegramVerifier{ccm: ccm}, nil
}

// Enabled reports whether signatures are checked.
func (v *TelegramVerifier) Enabled() bool {
	return !v.disabled
}

// Verify checks sig against the telegram fields.
// Returns nil on success or when verification is disabled.
func (v *TelegramVerifier) Verify(address [6]byte, seq uint32, status uint8, sig [TelegramTagSize]byte) error {
	if v.disabled {
		return nil
	}

	nonce := BuildTelegramNonce(address, seq)
	ad := BuildTelegramAuthData(seq, status)

	if _, err := v.ccm.Open(nonce[:], sig[:], ad[:]); err != nil {
		if errors.Is(err, ErrCCMAuthFailed) {
			return ErrSignatureMismatch
		}
		return fmt.Errorf("telegram auth: %w", err)
	}
	return nil
}

// Sign computes the security signature a switch with key would send.
func (v *TelegramVerifier) Sign(address [6]byte, seq uint32, status uint8) ([TelegramTagSize]byte, error) {
	var sig [TelegramTagSize]byte
	if v.disabled {
		return sig, nil
	}

	nonce := BuildTelegramNonce(address, seq)
	ad := BuildTelegramAuthData(seq, status)

	out, err := v.ccm.Seal(nonce[:], nil, ad[:])
	if err != nil {
		return sig, fmt.Errorf("telegram auth: %w", err)
	}
	copy(sig[:], out)
	return sig, nil
}

// SignTelegram is a convenience wrapper around NewTelegramVerifier and Sign.
func SignTelegram(key [TelegramKeySize]byte, address [6]byte, seq uint32, status uint8) ([TelegramTagSize]byte, error) {
	v, err := NewTelegramVerifier(key)
	if err != nil {
		return [TelegramTagSize]byte{}, err
	}
	return v.Sign(address, seq, status)
}
