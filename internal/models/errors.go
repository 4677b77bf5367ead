package models

import (
	"errors"
)

// Error kinds surfaced across component boundaries. Components wrap these
// with %w so callers can branch on errors.Is.
var (
	// ErrInvalidConfig aborts startup (exit code 2).
	ErrInvalidConfig = errors.New("invalid config")

	// ErrProviderUnavailable is retryable; fatal only for universe fetch.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrRunTimeout terminates a run without publishing.
	ErrRunTimeout = errors.New("run timed out")

	// ErrCacheUnavailable fails publish/read; the pipeline itself still
	// completes its computation.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrQueueFull rejects new triggers with 503.
	ErrQueueFull = errors.New("job queue full")

	// ErrRunNotFound is returned by status lookups for unknown run IDs.
	ErrRunNotFound = errors.New("run not found")
)
