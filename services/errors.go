package services

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure so the HTTP layer can choose a status code
type Kind string

const (
	KindValidation  Kind = "validation"
	KindReference   Kind = "reference"
	KindConflict    Kind = "conflict"
	KindNotFound    Kind = "not_found"
	KindNoop        Kind = "noop"
	KindPersistence Kind = "persistence"
)

// Error is returned by every service operation that fails for a known reason
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Reference(format string, args ...interface{}) error {
	return &Error{Kind: KindReference, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Noop reports that the acting user's request changed nothing. Authorization
// failures surface this way rather than as a distinct error.
func Noop(format string, args ...interface{}) error {
	return &Error{Kind: KindNoop, Message: fmt.Sprintf(format, args...)}
}

// Persistence wraps a datastore error as "Error <doing>"
func Persistence(doing string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: KindPersistence, Message: "Error " + doing, Err: err}
}

// KindOf returns the kind of err, or KindPersistence for foreign errors
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindPersistence
}

// IsKind reports whether err is a service error of kind k
func IsKind(err error, k Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == k
}
