package model

import "errors"

// Sentinel errors for the transport/filesystem/extraction error taxonomy.
// Component code wraps these with fmt.Errorf("...: %w", ErrX) so callers
// can classify a failure with errors.Is without parsing strings.
var (
	// ErrTransient covers connection resets, timeouts, and 5xx responses.
	// Segment workers retry these with linear backoff before giving up.
	ErrTransient = errors.New("transient transport error")

	// ErrAuthExpired is returned for 401/403 responses. The engine
	// surfaces it to the API layer instead of retrying; the client is
	// expected to call the refresh_link operation.
	ErrAuthExpired = errors.New("authorization expired")

	// ErrRangeUnsupported means the origin ignored or rejected the Range
	// header. The caller falls back to a single connection.
	ErrRangeUnsupported = errors.New("server does not support byte ranges")

	// ErrFatalTransport covers unrecoverable transport failures (DNS
	// failure, TLS failure, malformed response) that should not retry.
	ErrFatalTransport = errors.New("fatal transport error")

	// ErrFilesystem covers disk-full, permission-denied, and similar
	// local I/O failures.
	ErrFilesystem = errors.New("filesystem error")

	// ErrExtraction covers archive extraction failures after a
	// successful download.
	ErrExtraction = errors.New("extraction failed")

	// ErrCanceled is returned when a task's context was canceled by an
	// explicit Cancel() call rather than by failure.
	ErrCanceled = errors.New("task canceled")

	// ErrTaskBusy is returned when an operation is attempted against a
	// task in a status that forbids it (e.g. renaming a DOWNLOADING task).
	ErrTaskBusy = errors.New("task is busy")

	// ErrNotFound is returned by the registry when a task id is unknown.
	ErrNotFound = errors.New("task not found")
)
