package uploads

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest covers malformed sizes, offsets and unknown target
	// folders.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound is returned for sessions that don't exist, have expired,
	// or belong to a different owner. The three cases are deliberately
	// indistinguishable.
	ErrNotFound = errors.New("no such upload session")

	// ErrNotReady is returned when finalize is attempted before the session
	// has received all its bytes.
	ErrNotReady = errors.New("upload session is not complete")

	// ErrConflict is the base for offset conflicts; use errors.Is against
	// this and errors.As against *OffsetConflictError to get the true
	// offset.
	ErrConflict = errors.New("offset conflict")

	// ErrStorageFailure wraps I/O errors writing or moving payload bytes.
	ErrStorageFailure = errors.New("storage failure")

	// ErrQuotaExceeded is what a QuotaFunc returns (or wraps) to signal that
	// the finalized version pushed the owner over their storage allowance.
	// The version is already published when this surfaces.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// OffsetConflictError reports the authoritative received offset when an
// append's claimed offset doesn't match, or when a second append races an
// in-flight one. Clients resolve it by re-querying status and resuming from
// the reported offset.
type OffsetConflictError struct {
	Offset int64
}

func (e *OffsetConflictError) Error() string {
	return fmt.Sprintf("offset conflict: current received offset is %d", e.Offset)
}

func (e *OffsetConflictError) Is(target error) bool {
	return target == ErrConflict
}
