// Package mailerr defines the error categories surfaced by the mailbox
// client. Every category is a concrete type matched with errors.As.
package mailerr

import (
	"errors"
	"fmt"
)

// UnauthenticatedError indicates that no valid session is available, or
// that the API rejected the credential with 401.
type UnauthenticatedError struct {
	Message string
	Err     error
}

func (e *UnauthenticatedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unauthenticated: %s: %v", e.Message, e.Err)
	}
	return "unauthenticated: " + e.Message
}

func (e *UnauthenticatedError) Unwrap() error { return e.Err }

// TransportError indicates that the request did not produce a usable
// response: the network failed, or the API answered non-2xx without a
// structured error body. StatusCode is zero for network failures.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("transport error on %s: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("unexpected status %d on %s: %s", e.StatusCode, e.Op, e.Body)
	default:
		return "transport error on " + e.Op
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError carries a structured error message returned by the mail API.
// Message is the server text, unmodified.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// ThreadUnavailableError indicates that a thread could not be fetched.
type ThreadUnavailableError struct {
	ThreadID string
	Err      error
}

func (e *ThreadUnavailableError) Error() string {
	return fmt.Sprintf("thread %q unavailable: %v", e.ThreadID, e.Err)
}

func (e *ThreadUnavailableError) Unwrap() error { return e.Err }

// ValidationError is a client-side precondition failure detected before
// any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Invalid returns a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsUnauthenticated reports whether err (or any error in its chain) is an
// UnauthenticatedError.
func IsUnauthenticated(err error) bool {
	var target *UnauthenticatedError
	return errors.As(err, &target)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsAPI reports whether err is an APIError.
func IsAPI(err error) bool {
	var target *APIError
	return errors.As(err, &target)
}

// IsThreadUnavailable reports whether err is a ThreadUnavailableError.
func IsThreadUnavailable(err error) bool {
	var target *ThreadUnavailableError
	return errors.As(err, &target)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// Category names an error class for display and logging.
type Category string

const (
	CategoryNone              Category = ""
	CategoryUnauthenticated   Category = "unauthenticated"
	CategoryTransport         Category = "transport"
	CategoryAPI               Category = "api"
	CategoryThreadUnavailable Category = "thread_unavailable"
	CategoryValidation        Category = "validation"
	CategoryOther             Category = "other"
)

// Kind classifies err. The outermost category wins, so a thread fetch
// that failed on transport reports CategoryThreadUnavailable.
func Kind(err error) Category {
	if err == nil {
		return CategoryNone
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch e.(type) {
		case *ThreadUnavailableError:
			return CategoryThreadUnavailable
		case *UnauthenticatedError:
			return CategoryUnauthenticated
		case *ValidationError:
			return CategoryValidation
		case *APIError:
			return CategoryAPI
		case *TransportError:
			return CategoryTransport
		}
	}
	return CategoryOther
}
