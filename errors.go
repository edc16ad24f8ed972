package gtfs

import "errors"

// Sentinel errors for the store's small, closed error taxonomy. Callers
// should use errors.Is against these rather than string-matching.
var (
	// ErrNameTooLong is returned when a data file name exceeds maxNameLen.
	ErrNameTooLong = errors.New("gtfs: file name too long")

	// ErrShrinkRejected is returned when OpenFile is called with a length
	// smaller than the file's current on-disk size.
	ErrShrinkRejected = errors.New("gtfs: cannot shrink file on open")

	// ErrRangeInvalid is returned by Read/Write when the requested range
	// falls outside [0, L(F)) or has a negative offset/length.
	ErrRangeInvalid = errors.New("gtfs: invalid offset/length range")

	// ErrRemoveOpenRejected is returned by Handle.Remove when the handle's
	// mapping has not been torn down yet.
	ErrRemoveOpenRejected = errors.New("gtfs: cannot remove a file that is still open")

	// ErrStateViolation is returned by Sync/SyncN/Abort when called on a
	// WriteIntent that has already reached a terminal state, and by Abort
	// when called on an intent that has already been synced.
	ErrStateViolation = errors.New("gtfs: write intent already synced or aborted")

	// ErrLogCorruption names a torn log tail. Nothing in the package
	// currently returns or wraps it: readLog stops silently at a torn
	// tail, so Clean/OpenFile/Close never report one.
	ErrLogCorruption = errors.New("gtfs: torn log record")
)
