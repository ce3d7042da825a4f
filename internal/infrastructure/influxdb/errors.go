package influxdb

import "errors"

// Sentinel errors, checked with errors.Is. Write failures are not
// surfaced here: points are batched asynchronously and write errors
// arrive through the SetOnError callback instead.
var (
	// ErrDisabled is returned by Connect when telemetry is switched off
	// in configuration.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps a failed initial ping or health probe.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close, or when
	// the server stopped answering.
	ErrNotConnected = errors.New("influxdb: not connected")
)
