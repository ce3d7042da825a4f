package message

import "errors"

// Domain errors for the message store.
var (
	// ErrInvalidQuery is returned when query options are malformed or
	// contradictory.
	ErrInvalidQuery = errors.New("message: invalid query")

	// ErrInvalidRecord is returned when a record fails validation before
	// insert.
	ErrInvalidRecord = errors.New("message: invalid record")
)
