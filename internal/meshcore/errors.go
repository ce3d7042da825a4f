package meshcore

import "errors"

// Domain errors for the companion radio client.
var (
	// ErrConnectionFailed is returned when the connection to the radio fails.
	ErrConnectionFailed = errors.New("meshcore: connection to radio failed")

	// ErrNotConnected is returned when an operation requires a connection
	// but the client is not connected.
	ErrNotConnected = errors.New("meshcore: not connected to radio")

	// ErrClientClosed is returned when an operation is attempted after Close.
	ErrClientClosed = errors.New("meshcore: client closed")

	// ErrQueueEmpty is returned by DrainOne when the device message queue
	// holds no further messages. It marks the end of a drain cycle, not a
	// failure.
	ErrQueueEmpty = errors.New("meshcore: device queue empty")

	// ErrDeviceError is returned when the device answers a command with an
	// error frame.
	ErrDeviceError = errors.New("meshcore: device reported error")

	// ErrCommandFailed is returned when a command cannot be written to or
	// read from the radio.
	ErrCommandFailed = errors.New("meshcore: command failed")

	// ErrInvalidFrame is returned when a received frame is malformed.
	ErrInvalidFrame = errors.New("meshcore: invalid frame")

	// ErrProtocolDesync is returned when the byte stream can no longer be
	// framed safely. The connection must be dropped and re-established.
	ErrProtocolDesync = errors.New("meshcore: protocol desync")
)
