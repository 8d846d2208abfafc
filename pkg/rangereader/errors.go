package rangereader

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed Reader.
var ErrClosed = errors.New("stream already closed")

// InitError reports that the remote resource could not be opened: the size
// was undeterminable, or the server does not support byte ranges and no
// fallback full body was obtained. Construction fails hard; no partial
// Reader is usable.
type InitError struct {
	URL    string
	Reason string
	Err    error
}

func (e *InitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("open %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("open %s: %s", e.URL, e.Reason)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// TransferError reports that a range fetch failed after exhausting the
// retry policy, or returned an unrecoverable status. It surfaces to the
// caller of the Read that needed the chunk.
type TransferError struct {
	Status   int // last HTTP status, 0 when the failure was transport-level
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("range fetch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// statusError marks an HTTP status outside the handled set so the retry
// loop can classify it.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.code)
}
