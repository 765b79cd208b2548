package bindgen

import (
	"errors"
	"fmt"

	"github.com/woxQAQ/bindgen-host/internal/webapi"
)

var (
	// ErrClosureDropped is returned when a closure is called after its last
	// reference was released.
	ErrClosureDropped = errors.New("closure invoked after being dropped")

	// ErrClosureBusy is returned when a closure is re-entered while it is
	// already running.
	ErrClosureBusy = errors.New("closure invoked recursively")

	// ErrInstantiating is returned by Init while another Init is in progress.
	ErrInstantiating = errors.New("guest is being instantiated")

	// ErrNotRunning is returned when guest exports are used before Init.
	ErrNotRunning = errors.New("guest is not running")

	// ErrAsyncSource is returned by InitSync for sources that need I/O.
	ErrAsyncSource = errors.New("source requires asynchronous loading")
)

// DecodeError reports guest bytes that are not valid UTF-8.
type DecodeError struct {
	Ptr    uint32
	Len    uint32
	Offset int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid utf-8 at byte %d of string (ptr=%d, len=%d)", e.Offset, e.Ptr, e.Len)
}

// GuestError is a failure the guest raised on purpose, either with a message
// (__wbindgen_throw) or by rethrowing a host value (__wbindgen_rethrow).
type GuestError struct {
	Message string
	Value   any
}

func (e *GuestError) Error() string {
	if e.Value != nil && e.Message == "" {
		return "guest rethrew " + webapi.DebugString(e.Value)
	}
	return "guest error: " + e.Message
}

func (e *GuestError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// thrown returns the value a host catcher observes for this error.
func (e *GuestError) thrown() any {
	if e.Value != nil {
		return e.Value
	}
	return &webapi.Error{Name: webapi.ErrorName, Message: e.Message}
}

// StartError wraps a failure of the guest start routine.
type StartError struct {
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("guest start failed: %v", e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// AbortError records that the guest instance died during a call, for
// example after exceeding the call timeout. The boundary cannot recover.
type AbortError struct {
	Export string
	Err    error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("guest aborted in %s: %v", e.Export, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}
