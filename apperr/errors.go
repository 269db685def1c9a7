// Package apperr carries the error kinds the HTTP layer knows how to answer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("record not found")

type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails returns a copy of e with key set in Details.
func (e *Error) WithDetails(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func New(status int, code, message string) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

func NotFound(what string) *Error {
	return New(http.StatusNotFound, "not_found", what+" not found")
}

func Invalid(message string) *Error {
	return New(http.StatusBadRequest, "invalid", message)
}

func Conflict(message string) *Error {
	return New(http.StatusConflict, "conflict", message)
}

func Unauthorized(message string) *Error {
	if message == "" {
		message = "authentication required"
	}
	return New(http.StatusUnauthorized, "unauthorized", message)
}

func Forbidden(message string) *Error {
	if message == "" {
		message = "permission denied"
	}
	return New(http.StatusForbidden, "forbidden", message)
}

func TooManyRequests(message string) *Error {
	return New(http.StatusTooManyRequests, "rate_limited", message)
}

func Internal(message string, err error) *Error {
	e := New(http.StatusInternalServerError, "internal", message)
	e.Err = err
	return e
}

// As returns the *Error in err's chain, translating ErrNotFound on the way.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	if errors.Is(err, ErrNotFound) {
		return NotFound("record"), true
	}
	return nil, false
}
