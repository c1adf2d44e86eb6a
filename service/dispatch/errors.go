package dispatch

import (
	"errors"
	"fmt"
)

// ErrModuleBusy signals that the target module's action lock was held by
// another run.  It is transient: adapters retry with backoff and surface it
// only once retries exhaust.  Detect it with errors.Is.
var ErrModuleBusy = errors.New("dispatch: module busy")

// Error reports a network-level dispatch failure (connection refused,
// timeout).  It is fatal to the run once the adapter's bounded retries are
// exhausted.
type Error struct {
	Module string
	Step   string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch to module %s failed for step %s: %v", e.Module, e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ProtocolError reports a malformed module response.  It is never retried -
// a response that does not match the schema indicates version skew between
// runner and module, and retrying cannot fix that.
type ProtocolError struct {
	Module string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("module %s returned a malformed response: %v", e.Module, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
