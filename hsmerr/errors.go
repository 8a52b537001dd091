// Package hsmerr defines the error taxonomy shared by the transfer, object
// and administration clients.
package hsmerr

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

var (
	// ErrInvalidArgument is returned for malformed filters, empty required
	// fields and conflicting addressing modes.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedOperation is returned for requests the client cannot map
	// to an engine command, e.g. an unknown filesystem type.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrResourceBusy is matched by engine failures caused by lock contention.
	ErrResourceBusy = errors.New("resource busy")

	// ErrIOFailure is matched by local file failures and aggregate batch
	// failures.
	ErrIOFailure = errors.New("i/o failure")

	// ErrEngineFailure is matched by every non-zero engine status.
	ErrEngineFailure = errors.New("engine failure")

	// ErrEncoding is returned when attribute text is not valid UTF-8.
	ErrEncoding = errors.New("invalid encoding")

	// ErrNotFound is returned by the catalog for missing records.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned by the catalog for duplicate records.
	ErrExists = errors.New("already exists")
)

// Code extracts the errno carried by err. Errors without one map to EIO,
// nil maps to 0.
func Code(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	switch {
	case errors.Is(err, ErrInvalidArgument):
		return syscall.EINVAL
	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, ErrExists):
		return syscall.EEXIST
	case errors.Is(err, ErrResourceBusy):
		return syscall.EBUSY
	case errors.Is(err, ErrUnsupportedOperation):
		return syscall.EOPNOTSUPP
	}

	return syscall.EIO
}

func isBusy(code syscall.Errno) bool {
	return code == syscall.EBUSY || code == syscall.EEXIST || code == syscall.EAGAIN
}

// EngineError reports a non-zero status returned by the engine for one
// command.
type EngineError struct {
	// Op names the command, e.g. "device lock".
	Op string
	// Target lists the identifiers the command was about.
	Target string
	Code   syscall.Errno
}

// NewEngineError wraps the status returned by the engine. It returns nil for
// a nil status.
func NewEngineError(op, target string, status error) error {
	if status == nil {
		return nil
	}

	return &EngineError{Op: op, Target: target, Code: Code(status)}
}

func (e *EngineError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s error: %s (%d)", e.Op, e.Code.Error(), int(e.Code))
	}

	return fmt.Sprintf("%s error on %s: %s (%d)", e.Op, e.Target, e.Code.Error(), int(e.Code))
}

// Is matches ErrEngineFailure, ErrResourceBusy on contention and the errno.
func (e *EngineError) Is(target error) bool {
	switch target {
	case ErrEngineFailure:
		return true
	case ErrResourceBusy:
		return isBusy(e.Code)
	case ErrNotFound:
		return e.Code == syscall.ENOENT
	case ErrExists:
		return e.Code == syscall.EEXIST
	}

	return false
}

func (e *EngineError) Unwrap() error { return e.Code }

// IOError reports a failed transfer batch or a local file failure. It names
// every object and path of the batch.
type IOError struct {
	Op     string
	Code   syscall.Errno
	ObjIDs []string
	Paths  []string

	// NodeName is the host the engine suggested for a GET batch.
	NodeName string
}

func (e *IOError) Error() string {
	var b strings.Builder

	b.WriteString("cannot ")
	b.WriteString(e.Op)

	switch e.Op {
	case "PUT":
		fmt.Fprintf(&b, " '%s' to objid(s) '%s'", strings.Join(e.Paths, ", "), strings.Join(e.ObjIDs, ", "))
	case "GET":
		fmt.Fprintf(&b, " objid(s) '%s' to '%s'", strings.Join(e.ObjIDs, ", "), strings.Join(e.Paths, ", "))
	default:
		fmt.Fprintf(&b, " for objid(s) '%s'", strings.Join(e.ObjIDs, ", "))
	}

	if e.Code != 0 {
		fmt.Fprintf(&b, ": %s (%d)", e.Code.Error(), int(e.Code))
	}

	return b.String()
}

// Is matches ErrIOFailure and the errno.
func (e *IOError) Is(target error) bool {
	return target == ErrIOFailure
}

func (e *IOError) Unwrap() error { return e.Code }
