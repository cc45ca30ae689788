package errors

import stderrors "errors"

// Failure kinds shared by every module. Module-level sentinels wrap exactly one
// of these so callers can match either the precise condition or its kind.
var (
	ErrInvariantViolation = stderrors.New("invariant violation")
	ErrPermissionDenied   = stderrors.New("permission denied")
	ErrInvalidState       = stderrors.New("invalid state")
	ErrArithmeticBounds   = stderrors.New("arithmetic bounds")
)

// Error is a module sentinel classified under one of the failure kinds.
type Error struct {
	kind error
	msg  string
}

// New declares a module sentinel of the given kind.
func New(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

// Kind returns the failure kind of err, or nil when err is not classified.
func Kind(err error) error {
	for _, kind := range []error{ErrInvariantViolation, ErrPermissionDenied, ErrInvalidState, ErrArithmeticBounds} {
		if stderrors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
