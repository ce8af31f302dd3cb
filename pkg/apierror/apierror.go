// ABOUTME: Request-rejection error taxonomy shared by the query compiler and validator
// ABOUTME: Every error carries a kind tag and a human-readable message

package apierror

import (
	"errors"
	"fmt"
)

// Kind tags a request-rejection error. The string form is what clients see
// in the "error" field of a response.
type Kind string

const (
	UnknownParameter  Kind = "UnknownParameter"
	InvalidExpression Kind = "InvalidExpression"
	InvalidOperator   Kind = "InvalidOperator"
	InvalidValue      Kind = "InvalidValue"
	InvalidQuery      Kind = "InvalidQuery"
	InvalidMessage    Kind = "InvalidMessage"

	// Raised by the storage layer and the transports, not by the compiler.
	InvalidID Kind = "InvalidId"
	NotFound  Kind = "NotFound"
)

// Sentinels for errors.Is. Any *Error with the same kind matches.
var (
	ErrUnknownParameter  = &Error{Kind: UnknownParameter}
	ErrInvalidExpression = &Error{Kind: InvalidExpression}
	ErrInvalidOperator   = &Error{Kind: InvalidOperator}
	ErrInvalidValue      = &Error{Kind: InvalidValue}
	ErrInvalidQuery      = &Error{Kind: InvalidQuery}
	ErrInvalidMessage    = &Error{Kind: InvalidMessage}
	ErrInvalidID         = &Error{Kind: InvalidID}
	ErrNotFound          = &Error{Kind: NotFound}
)

// Error is a caller input error. Field and Value identify what was rejected
// when that is known.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Value   string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithField returns a copy of e attributed to field and value. The message is
// left untouched.
func (e *Error) WithField(field, value string) *Error {
	c := *e
	c.Field = field
	c.Value = value
	return &c
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsClientError reports whether err is a request-rejection error, as opposed
// to a storage or transport failure.
func IsClientError(err error) bool {
	_, ok := KindOf(err)
	return ok
}
