package discovery

import "errors"

// Package-level sentinel errors for discovery operations.
var (
	// ErrClosed is returned when an operation is attempted on a closed component.
	ErrClosed = errors.New("discovery: closed")

	// ErrAlreadyStarted is returned when starting an already-started advertisement.
	ErrAlreadyStarted = errors.New("discovery: already started")

	// ErrNotStarted is returned when stopping or updating an advertisement that was not started.
	ErrNotStarted = errors.New("discovery: not started")

	// ErrInvalidInstanceName is returned when the instance name is empty or too long.
	ErrInvalidInstanceName = errors.New("discovery: invalid instance name (1-63 bytes)")

	// ErrInvalidTXTRecord is returned when a TXT record has invalid format.
	ErrInvalidTXTRecord = errors.New("discovery: invalid TXT record format")

	// ErrUnsupportedVersion is returned for a TXT version this package cannot read.
	ErrUnsupportedVersion = errors.New("discovery: unsupported TXT version")
)
