package common

import (
	"errors"
	"fmt"
)

// Kind classifies why an invoice operation failed.
type Kind string

const (
	KindDocumentLoad  Kind = "DocumentLoadError"
	KindFieldQuery    Kind = "FieldQueryError"
	KindNormalization Kind = "NormalizationError"
	KindPersistence   Kind = "PersistenceError"
)

// Error carries a failure kind plus the operation and, for field-level
// failures, the field it happened on.
type Error struct {
	Kind  Kind
	Op    string
	Field string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Field, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Field, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the text stored on a failed invoice: the underlying cause,
// verbatim, without the operation prefix.
func (e *Error) Message() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Error()
}

var (
	ErrNotFound   = errors.New("invoice not found")
	ErrNoDocument = errors.New("no document found for this invoice")
	ErrInFlight   = errors.New("invoice is already being processed")
	ErrValidation = errors.New("validation failed")
)

// New builds an *Error. A nil cause is allowed.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// FieldError builds a field-scoped *Error.
func FieldError(kind Kind, op, field string, err error) *Error {
	return &Error{Kind: kind, Op: op, Field: field, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// MessageOf returns the text to record for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message()
	}
	return err.Error()
}

// ValidationError describes a rejected upload.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}
