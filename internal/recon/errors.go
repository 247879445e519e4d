package recon

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when a batch stops early because its context
// was cancelled. Results committed before the stop are kept.
var ErrCancelled = errors.New("import cancelled")

// StorageError wraps a failed store call. Resolution of the affected record
// is abandoned; no partial result is written.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
