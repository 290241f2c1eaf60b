// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation   Kind = "VALIDATION_ERROR"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindRateLimited  Kind = "RATE_LIMITED"
	KindExternal     Kind = "EXTERNAL_SERVICE_ERROR"
	KindInternal     Kind = "INTERNAL_ERROR"
)

type metadata struct {
	status    int
	retryable bool
}

var kindMetadata = map[Kind]metadata{
	KindValidation:   {status: http.StatusBadRequest},
	KindUnauthorized: {status: http.StatusUnauthorized},
	KindForbidden:    {status: http.StatusForbidden},
	KindNotFound:     {status: http.StatusNotFound},
	KindConflict:     {status: http.StatusConflict},
	KindRateLimited:  {status: http.StatusTooManyRequests, retryable: true},
	KindExternal:     {status: http.StatusBadGateway, retryable: true},
	KindInternal:     {status: http.StatusInternalServerError, retryable: true},
}

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the error type returned by services. Handlers translate it into
// an HTTP response once, at the edge.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) HTTPStatus() int {
	if meta, ok := kindMetadata[e.Kind]; ok {
		return meta.status
	}
	return http.StatusInternalServerError
}

func (e *Error) Retryable() bool {
	return kindMetadata[e.Kind].retryable
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

func NotFound(resource string) *Error {
	return New(KindNotFound, resource+" not found")
}

func Conflict(message string) *Error {
	return New(KindConflict, message)
}

func RateLimited(message string) *Error {
	return New(KindRateLimited, message)
}

// External marks a failure of a collaborator (payment processor, storage, email).
func External(service string, err error) *Error {
	return Wrap(KindExternal, service+" unavailable", err)
}

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
