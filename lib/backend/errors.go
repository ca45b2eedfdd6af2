package backend

import (
	"context"
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Kinds
// --------------------------------------------------------------------------

// ErrorKind is the tagged classification of a backend failure. The
// resilience layer never inspects raw driver errors: every backend maps its
// own failure taxonomy onto these kinds, and retry/conflict decisions are
// made on the kind alone.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota

	// Transient kinds (retried by the retry policy)

	KindTimeout     // request timed out
	KindUnavailable // service temporarily unavailable
	KindInternal    // internal server error
	KindNetwork     // transient network failure

	// Terminal kinds

	KindNotFound        // document not found (a valid outcome on reads)
	KindAlreadyExists   // WriteIfAbsent hit an existing key
	KindCasMismatch     // another writer won the race
	KindParse           // malformed request or statement
	KindAuth            // authentication failure
	KindInvalidArgument // invalid argument
	KindPlanUnknown     // plan handle not known to the backend
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	case KindInternal:
		return "internal"
	case KindNetwork:
		return "network"
	case KindNotFound:
		return "not found"
	case KindAlreadyExists:
		return "already exists"
	case KindCasMismatch:
		return "cas mismatch"
	case KindParse:
		return "parse"
	case KindAuth:
		return "auth"
	case KindInvalidArgument:
		return "invalid argument"
	case KindPlanUnknown:
		return "plan unknown"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Error Type
// --------------------------------------------------------------------------

// Error is the error type all backend implementations return. It pairs a
// classification kind with a human readable message.
type Error struct {
	Kind ErrorKind
	Msg  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("backend error (%s): %s", e.Kind, e.Msg)
}

// NewError creates a new Error with the given kind and message.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf creates a new Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// --------------------------------------------------------------------------
// Classification Helpers
// --------------------------------------------------------------------------

// KindOf extracts the ErrorKind from an error. Context deadline errors are
// reported as KindTimeout so that attempt timeouts classify like backend
// timeouts. Errors that carry no *Error anywhere in their chain are
// KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsKind reports whether the error chain carries a backend Error of the
// given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
