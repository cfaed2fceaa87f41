package etl

import (
	"fmt"
	"strings"
)

// ErrorKind classifies failures across the ETL stages
type ErrorKind string

const (
	// KindAuthentication means the credential exchange failed
	KindAuthentication ErrorKind = "AUTHENTICATION"
	// KindTransientNetwork means a timeout or server error on a page request
	KindTransientNetwork ErrorKind = "TRANSIENT_NETWORK"
	// KindTransform means a record could not be coerced into its canonical shape
	KindTransform ErrorKind = "TRANSFORM"
	// KindLoad means a persistence failure during a batch transaction
	KindLoad ErrorKind = "LOAD"
)

// Error is the error type returned by every ETL stage.
// Two errors match under errors.Is when their kinds are equal.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " ")))
	b.WriteString(" error")
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is checks
var (
	ErrAuthentication   = &Error{Kind: KindAuthentication}
	ErrTransientNetwork = &Error{Kind: KindTransientNetwork}
	ErrTransform        = &Error{Kind: KindTransform}
	ErrLoad             = &Error{Kind: KindLoad}
)

// NewAuthenticationError creates an authentication error
func NewAuthenticationError(op string, err error) *Error {
	return &Error{Kind: KindAuthentication, Op: op, Err: err}
}

// NewTransientNetworkError creates a network error with a message describing the response
func NewTransientNetworkError(op, message string, err error) *Error {
	return &Error{Kind: KindTransientNetwork, Op: op, Message: message, Err: err}
}

// NewTransformError creates a transform error for one field of an entity
func NewTransformError(entity, field string, err error) *Error {
	return &Error{
		Kind:    KindTransform,
		Op:      "transform " + entity,
		Message: fmt.Sprintf("field %q", field),
		Err:     err,
	}
}

// NewLoadError creates a load error for the given job
func NewLoadError(job string, err error) *Error {
	return &Error{Kind: KindLoad, Op: job, Err: err}
}
