package store

import "errors"

// Kind classifies an error for propagation purposes (see error handling
// design): Validation/NotFound/Conflict are reported to the caller,
// Transient/Operational are logged and retried or swallowed in background
// loops, Fatal aborts daemon startup.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindTransient
	KindOperational
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindOperational:
		return "operational"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can branch on
// taxonomy without string-matching messages.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func NotFound(msg string) error            { return newErr(KindNotFound, msg, nil) }
func Validation(msg string) error          { return newErr(KindValidation, msg, nil) }
func Conflict(msg string) error            { return newErr(KindConflict, msg, nil) }
func Operational(msg string, cause error) error {
	if cause == nil {
		return nil
	}
	return newErr(KindOperational, msg, cause)
}
func Fatal(msg string, cause error) error  { return newErr(KindFatal, msg, cause) }
func Transient(msg string, cause error) error { return newErr(KindTransient, msg, cause) }

// KindOf returns the Kind carried by err, or KindUnknown if err does not
// wrap a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
