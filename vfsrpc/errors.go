package vfsrpc

import (
	"errors"
	"io/fs"
)

// ErrUnsupported is returned by the client when a requested group is not
// enabled in the server's advertised Capabilities.
var ErrUnsupported = errors.New("vfsrpc: operation not permitted by served capabilities")

func toErrWire(err error) *ErrWire {
	if err == nil {
		return nil
	}
	kind := ErrKindOther
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = ErrKindNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = ErrKindPermissionDenied
	case errors.Is(err, fs.ErrExist):
		kind = ErrKindAlreadyExists
	case errors.Is(err, ErrUnsupported):
		kind = ErrKindUnsupported
	}
	return &ErrWire{Kind: kind, Message: err.Error()}
}

func fromErrWire(e *ErrWire) error {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ErrKindNotFound:
		return &fs.PathError{Op: "vfsrpc", Path: "", Err: fs.ErrNotExist}
	case ErrKindPermissionDenied:
		return &fs.PathError{Op: "vfsrpc", Path: "", Err: fs.ErrPermission}
	case ErrKindAlreadyExists:
		return &fs.PathError{Op: "vfsrpc", Path: "", Err: fs.ErrExist}
	case ErrKindUnsupported:
		return ErrUnsupported
	default:
		return errors.New(e.Message)
	}
}
