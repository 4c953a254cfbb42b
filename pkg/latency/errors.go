package latency

import "errors"

// Custom error types for better error discrimination
var (
	// ErrMalformedReport is returned when an inbound agent message cannot be parsed
	ErrMalformedReport = errors.New("malformed agent report payload")

	// ErrEngineClosed is returned when an operation is attempted on a closed engine
	ErrEngineClosed = errors.New("latency engine is closed")

	// ErrProbeRunning is returned when a probe is started twice
	ErrProbeRunning = errors.New("volume probe already running")
)
