package publish

import "errors"

var (
	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("publish: timeout")

	// ErrNoBroker is returned when no broker or client is configured.
	ErrNoBroker = errors.New("publish: no broker configured")

	// ErrClosed is returned when publishing through a closed publisher.
	ErrClosed = errors.New("publish: closed")
)
