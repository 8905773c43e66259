package ftptree

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport means a command could not complete its round trip
	// (network failure, timeout, closed connection). It is never retried.
	ErrTransport = errors.New("ftptree: transport failure")

	// ErrPrecondition means the operation was refused before any mutating
	// command was sent, e.g. renaming onto an existing name.
	ErrPrecondition = errors.New("ftptree: precondition failed")

	// ErrCapabilityUnavailable means the server does not advertise a feature
	// the operation depends on.
	ErrCapabilityUnavailable = errors.New("ftptree: capability not advertised by server")

	// ErrPartialMutation means a multi-step operation failed after some of
	// its steps were applied. The accompanying Journal lists them.
	ErrPartialMutation = errors.New("ftptree: operation partially applied")

	// ErrCommand means the server answered a command with a negative reply.
	ErrCommand = errors.New("ftptree: command rejected by server")
)

// OpError records a failed tree operation together with the path it was
// applied to.
type OpError struct {
	// Op is the operation, e.g. "rename" or "dirsize".
	Op string

	Path string

	// Kind is one of the Err* sentinels of this package.
	Kind error

	// Err is the underlying cause, if any.
	Err error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// replyCoder is implemented by errors carrying an FTP reply code, such as
// *ftp.ProtocolError. An error without one never reached the server's
// command interpreter and is treated as a transport failure.
type replyCoder interface {
	ReplyCode() int
}

// IsTransport reports whether err is a transport failure rather than a
// negative server reply.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	var op *OpError
	if errors.As(err, &op) {
		return op.Kind == ErrTransport
	}
	var rc replyCoder
	return !errors.As(err, &rc)
}

func precondition(op, path, format string, args ...any) error {
	return &OpError{Op: op, Path: path, Kind: ErrPrecondition, Err: fmt.Errorf(format, args...)}
}

// classify wraps an executor error with the matching kind.
func classify(op, path string, err error) error {
	if err == nil {
		return nil
	}
	kind := ErrCommand
	if IsTransport(err) {
		kind = ErrTransport
	}
	return &OpError{Op: op, Path: path, Kind: kind, Err: err}
}
