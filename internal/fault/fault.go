// Package fault defines the error kinds shared by the plugin framework.
//
// Every structural failure (duplicate registration, unknown id, missing
// dependency, ...) is reported as an *Error carrying a Kind. Callers match
// kinds with errors.Is against the sentinel values below or with IsKind.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind string

const (
	KindUnknown               Kind = "Unknown"
	KindDuplicateRegistration Kind = "DuplicateRegistration"
	KindNotFound              Kind = "NotFound"
	KindNotRunning            Kind = "NotRunning"
	KindNotInitialized        Kind = "NotInitialized"
	KindAlreadyInitialized    Kind = "AlreadyInitialized"
	KindInvalidArgument       Kind = "InvalidArgument"
	KindMissingDependency     Kind = "MissingDependency"
	KindDependentsExist       Kind = "DependentsExist"
	KindValidationFailed      Kind = "ValidationFailed"
	KindEncryptionFailure     Kind = "EncryptionFailure"
	KindDecryptionFailure     Kind = "DecryptionFailure"
	KindDeliveryFailure       Kind = "DeliveryFailure"
	KindUnsupported           Kind = "Unsupported"
	KindStorageFailure        Kind = "StorageFailure"
)

// Sentinels for errors.Is matching. Only the kind is compared.
var (
	ErrDuplicateRegistration = &Error{kind: KindDuplicateRegistration, message: "already registered"}
	ErrNotFound              = &Error{kind: KindNotFound, message: "not found"}
	ErrNotRunning            = &Error{kind: KindNotRunning, message: "not running"}
	ErrNotInitialized        = &Error{kind: KindNotInitialized, message: "not initialized"}
	ErrAlreadyInitialized    = &Error{kind: KindAlreadyInitialized, message: "already initialized"}
	ErrInvalidArgument       = &Error{kind: KindInvalidArgument, message: "invalid argument"}
	ErrMissingDependency     = &Error{kind: KindMissingDependency, message: "missing dependency"}
	ErrDependentsExist       = &Error{kind: KindDependentsExist, message: "dependents exist"}
	ErrValidationFailed      = &Error{kind: KindValidationFailed, message: "validation failed"}
	ErrEncryptionFailure     = &Error{kind: KindEncryptionFailure, message: "encryption failed"}
	ErrDecryptionFailure     = &Error{kind: KindDecryptionFailure, message: "decryption failed"}
	ErrDeliveryFailure       = &Error{kind: KindDeliveryFailure, message: "delivery failed"}
	ErrUnsupported           = &Error{kind: KindUnsupported, message: "unsupported"}
	ErrStorageFailure        = &Error{kind: KindStorageFailure, message: "storage failure"}
)

// Error is the framework error type.
type Error struct {
	kind    Kind
	message string
	subject string
	details []string
	cause   error
}

// Option customises an Error at construction.
type Option func(*Error)

// WithSubject records the id or field the error is about.
func WithSubject(subject string) Option {
	return func(e *Error) { e.subject = subject }
}

// WithDetails attaches a list of detail lines (for example accumulated
// validation errors).
func WithDetails(details ...string) Option {
	return func(e *Error) { e.details = append(e.details, details...) }
}

// New creates an error of the given kind.
func New(kind Kind, message string, opts ...Option) *Error {
	e := &Error{kind: kind, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, cause error, message string, opts ...Option) *Error {
	e := New(kind, message, opts...)
	e.cause = cause
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.message)
	if len(e.details) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.details, "; "))
		b.WriteString(")")
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind
}

// Kind returns the error kind.
func (e *Error) Kind() Kind {
	if e == nil {
		return KindUnknown
	}
	return e.kind
}

// Subject returns the id or field the error refers to, if recorded.
func (e *Error) Subject() string {
	if e == nil {
		return ""
	}
	return e.subject
}

// Details returns the attached detail lines.
func (e *Error) Details() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.details))
	copy(out, e.details)
	return out
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return KindUnknown
}

// IsKind reports whether err's chain contains an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	for {
		if fe.kind == kind {
			return true
		}
		next := fe.cause
		fe = nil
		if !errors.As(next, &fe) {
			return false
		}
	}
}

// SubjectOf returns the subject of the first *Error in err's chain.
func SubjectOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.subject
	}
	return ""
}
