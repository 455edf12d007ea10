package config

import "errors"

var (
	// ErrInvalidBindPort is returned when the configured bind port is
	// outside the valid range.
	ErrInvalidBindPort = errors.New("bind port must be between 1 and 65535")

	// ErrInvalidPayloadMax is returned when the configured payload
	// size is not positive.
	ErrInvalidPayloadMax = errors.New("payload max must be greater than 0")

	// ErrInvalidTimeout is returned when the timeout is invalid.
	ErrInvalidTimeout = errors.New("timeout must be greater than 0")

	// ErrInvalidMaxRetries is returned when max retries is invalid.
	ErrInvalidMaxRetries = errors.New("max retries must be greater than or equal to 0")
)
