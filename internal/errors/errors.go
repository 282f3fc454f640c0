// Package errors carries the five error classes that cross the remote-call
// boundary, adapted from the teacher's FrameworkError/sentinel pattern.
package errors

import "fmt"

// Kind classifies an error the way a remote caller must distinguish it.
type Kind string

const (
	InvalidArgument   Kind = "invalid_argument"
	PermissionDenied  Kind = "permission_denied"
	NotFound          Kind = "not_found"
	FailedPrecondition Kind = "failed_precondition"
	Internal          Kind = "internal"
)

// Error wraps an operation, its class, and the underlying cause.
type Error struct {
	Op      string
	Kind    Kind
	ID      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s [%s] (id=%s)", e.Op, e.Message, e.Kind, e.ID)
	}
	return fmt.Sprintf("%s: %s [%s]", e.Op, e.Message, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for the given op/kind/message, optionally wrapping err.
func New(op string, kind Kind, message string, err error) *Error {
	return &Error{Op: op, Kind: kind, Message: message, Err: err}
}

func WithID(op string, kind Kind, message, id string, err error) *Error {
	return &Error{Op: op, Kind: kind, ID: id, Message: message, Err: err}
}

func kindOf(err error) (Kind, bool) {
	for err != nil {
		if casted, ok := err.(*Error); ok {
			return casted.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return "", false
}

func IsInvalidArgument(err error) bool {
	k, ok := kindOf(err)
	return ok && k == InvalidArgument
}

func IsPermissionDenied(err error) bool {
	k, ok := kindOf(err)
	return ok && k == PermissionDenied
}

func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == NotFound
}

func IsFailedPrecondition(err error) bool {
	k, ok := kindOf(err)
	return ok && k == FailedPrecondition
}

func IsInternal(err error) bool {
	k, ok := kindOf(err)
	return ok && k == Internal
}

// HTTPStatus maps a Kind to the status code the RPC transport should use.
func (k Kind) HTTPStatus() int {
	switch k {
	case InvalidArgument:
		return 400
	case PermissionDenied:
		return 403
	case NotFound:
		return 404
	case FailedPrecondition:
		return 412
	default:
		return 500
	}
}
