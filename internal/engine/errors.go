package engine

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a storage-engine failure. It is a value
// kind, not a distinct Go type per category, so callers compare with
// KindOf/errors.Is rather than type-switching.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidArgument
	KindIoError
	KindCorruption
	KindBufferPoolFull
	KindPagePinned
	KindWalError
	KindOutOfSpace
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindAlreadyExists:
		return "already exists"
	case KindInvalidArgument:
		return "invalid argument"
	case KindIoError:
		return "io error"
	case KindCorruption:
		return "corruption"
	case KindBufferPoolFull:
		return "buffer pool full"
	case KindPagePinned:
		return "page pinned"
	case KindWalError:
		return "wal error"
	case KindOutOfSpace:
		return "out of space"
	case KindInternal:
		return "internal error"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with an operation name and a Kind so
// callers can branch on failure category without parsing messages.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// newErr builds an *Error, wrapping err (which may be nil).
func newErr(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// NewError builds an *Error for callers outside this package (internal/store
// and cmd/dam use this to report failures in the same Kind taxonomy rather
// than inventing their own).
func NewError(op string, kind Kind, err error) *Error {
	return newErr(op, kind, err)
}

func newErrf(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind carried by err, walking the Unwrap chain.
// Returns KindNone if err is nil and KindInternal if err carries no Kind.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err (or any error in its chain) carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
