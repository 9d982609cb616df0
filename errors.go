package dfs

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a DFS error at the public boundary. Exactly one
// kind is attached to every error DFS returns; there is no partial or
// multi-cause status.
type ErrorKind int

const (
	// KindNOENT: lookup failed, or a dirent slot was empty.
	KindNOENT ErrorKind = iota
	// KindNOMEM: inode table exhausted.
	KindNOMEM
	// KindINVAL: a length/offset argument violated its contract.
	KindINVAL
	// KindIO: the flash facade reported failure.
	KindIO
)

func (k ErrorKind) String() string {
	switch k {
	case KindNOENT:
		return "NOENT"
	case KindNOMEM:
		return "NOMEM"
	case KindINVAL:
		return "INVAL"
	case KindIO:
		return "IO"
	default:
		return "UNKNOWN"
	}
}

// Error is the error type every public DFS operation returns on
// failure. Errors are surfaced unchanged to the caller: no retry, no
// partial recovery.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error // wrapped cause, nil for plain sentinel errors
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dfs: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("dfs: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(op string, kind ErrorKind) error {
	return &Error{Op: op, Kind: kind}
}

func wrapIOErr(op string, err error) error {
	return &Error{Op: op, Kind: KindIO, Err: err}
}

// KindOf reports the ErrorKind carried by err, or false if err is not
// (or does not wrap) a *dfs.Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
