package keystore

import "errors"

var (
	// ErrPassphraseRequired is returned when a key store file holds sealed
	// keys but no passphrase was configured.
	ErrPassphraseRequired = errors.New("keystore: file holds sealed keys, passphrase required")

	// ErrWrongPassphrase is returned when a sealed key cannot be opened.
	ErrWrongPassphrase = errors.New("keystore: wrong passphrase or corrupted key")

	// ErrInvalidEntry is returned for malformed key store entries.
	ErrInvalidEntry = errors.New("keystore: invalid entry")

	// ErrUnsupportedVersion is returned for files written by a newer format.
	ErrUnsupportedVersion = errors.New("keystore: unsupported file version")

	// ErrNoPath is returned when a FileStore is opened without a path.
	ErrNoPath = errors.New("keystore: path required")
)
