package serial

import "syscall"

// Error wraps a lower-level syscall/ioctl failure with the operation that
// triggered it, the way a bare errno rarely tells the caller enough on its
// own to diagnose a bad port.
type Error struct {
	Op  string
	Err error
}

func (e Error) Error() string {
	if e.Op == "" {
		if e.Err != nil {
			return e.Err.Error()
		}
		return ""
	}
	if e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op
}

func (e Error) Unwrap() error {
	return e.Err
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return Error{Op: op, Err: err}
}

// ErrClosed is returned by Port methods once Close has been called.
var ErrClosed = Error{Op: "port already closed", Err: syscall.EBADF}
