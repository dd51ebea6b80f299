// Package apperr defines the typed error kinds shared across the indexer,
// query engine, and network servers so that protocol boundaries can map
// errors to status codes without string matching.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for boundary translation (REST status codes,
// Electrum JSON-RPC error codes, indexer retry/fatal decisions).
type Kind int

const (
	// KindUnknown is the zero value; treated as an internal error.
	KindUnknown Kind = iota
	// KindConnection means the daemon was unreachable; retryable.
	KindConnection
	// KindRPC means the daemon returned a semantic JSON-RPC error.
	KindRPC
	// KindNotFound means the requested tx/block/scripthash is unknown.
	KindNotFound
	// KindBadRequest means malformed input (hex, prefix length, index range).
	KindBadRequest
	// KindIndexing means an index consistency invariant was violated; fatal.
	KindIndexing
	// KindIO wraps filesystem/network I/O failures.
	KindIO
	// KindStore wraps errors surfaced by the KV store.
	KindStore
	// KindParse wraps codec/deserialization errors.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindRPC:
		return "rpc"
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindIndexing:
		return "indexing"
	case KindIO:
		return "io"
	case KindStore:
		return "store"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Error is a typed, wrappable application error.
type Error struct {
	Kind Kind
	msg  string
	// RPCCode carries the daemon's JSON-RPC error code for KindRPC errors.
	RPCCode int
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Unwrap lets errors.Is/As and errors.Cause see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// New creates a typed error with no cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, msg: msg}
}

// Wrap attaches a kind and message to an existing error.
func Wrap(kind Kind, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, msg: msg, cause: cause}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

// RPCError builds a KindRPC error carrying the daemon's error code.
func RPCError(code int, msg string) error {
	return &Error{Kind: KindRPC, msg: msg, RPCCode: code}
}

// KindOf extracts the Kind from err, defaulting to KindUnknown for plain
// errors (including those produced outside this package).
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// RPCCodeOf extracts the daemon's JSON-RPC error code from a KindRPC error.
func RPCCodeOf(err error) (int, bool) {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind == KindRPC {
		return ae.RPCCode, true
	}
	return 0, false
}

// Recode returns a copy of err with its Kind changed, preserving message,
// cause, and RPCCode. Used at protocol boundaries to reclassify a daemon
// RPC rejection (e.g. a duplicate broadcast) as a client-caused error.
func Recode(err error, kind Kind) error {
	var ae *Error
	if !errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: kind, msg: ae.msg, RPCCode: ae.RPCCode, cause: ae.cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// NotFound is a convenience constructor for the common 404 case.
func NotFound(what string) error {
	return New(KindNotFound, what+" not found")
}

// BadRequest is a convenience constructor for the common 400 case.
func BadRequest(msg string) error {
	return New(KindBadRequest, msg)
}
