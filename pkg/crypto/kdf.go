package crypto

import (
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

// Storage key derivation parameters.
const (
	// StorageKeyIterationsMin is the lowest accepted PBKDF2 iteration count.
	StorageKeyIterationsMin = 1000

	// StorageKeyIterationsDefault is used when no iteration count is configured.
	StorageKeyIterationsDefault = 100000

	// StorageSaltSizeMin is the shortest accepted salt.
	StorageSaltSizeMin = 16
)

// Errors for key derivation.
var (
	ErrWeakIterations = errors.New("kdf: iteration count below minimum")
	ErrShortSalt      = errors.New("kdf: salt too short")
	ErrEmptyPassword  = errors.New("kdf: empty passphrase")
)

// DeriveStorageKey derives an AES-128 key from a passphrase using
// PBKDF2-HMAC-SHA256. The key protects learned switch keys at rest.
func DeriveStorageKey(passphrase, salt []byte, iterations int) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassword
	}
	if len(salt) < StorageSaltSizeMin {
		return nil, ErrShortSalt
	}
	if iterations < StorageKeyIterationsMin {
		return nil, ErrWeakIterations
	}
	return pbkdf2.Key(passphrase, salt, iterations, CCMKeySize, sha256.New), nil
}
