package ingest

import "errors"

// Domain errors for the ingest pipeline.
var (
	// ErrSessionUnavailable is returned by Do when no radio session is
	// established.
	ErrSessionUnavailable = errors.New("ingest: radio session unavailable")

	// ErrDropped is returned by the normalizer when a message cannot be
	// normalized and is discarded. Dropping is per-message and never
	// fatal to the pipeline.
	ErrDropped = errors.New("ingest: message dropped")
)
