package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized is returned for 401 responses. Re-authentication is the session holder's job.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransport wraps failures to reach the service or read its response.
	ErrTransport = errors.New("transport failure")
)

// ErrNotFound is a 404 response. Message is the service-provided "error" field, if any.
type ErrNotFound struct {
	msg     string
	Message string
}

func (e *ErrNotFound) Error() string {
	if e.Message != "" {
		return e.msg + ": " + e.Message
	}
	return e.msg
}

// StatusError is a non-2xx response other than 404. Message carries the
// service-provided "error" field when the body had one. A 401 StatusError
// unwraps to ErrUnauthorized.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("status %d", e.Code)
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

type Class int

const (
	ClassNone Class = iota
	ClassUnauthorized
	ClassNotFound
	ClassValidation
	ClassTransport
	ClassOther
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassUnauthorized:
		return "unauthorized"
	case ClassNotFound:
		return "not found"
	case ClassValidation:
		return "validation"
	case ClassTransport:
		return "transport"
	default:
		return "other"
	}
}

// Classify maps an error returned by Client onto the failure taxonomy used for logging.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, ErrUnauthorized) {
		return ClassUnauthorized
	}
	var notFound *ErrNotFound
	if errors.As(err, &notFound) {
		return ClassNotFound
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Code >= 400 && statusErr.Code < 500 {
			return ClassValidation
		}
		return ClassOther
	}
	if errors.Is(err, ErrTransport) {
		return ClassTransport
	}
	return ClassOther
}

// Message returns the service-provided error message carried by err, if any.
func Message(err error) string {
	var notFound *ErrNotFound
	if errors.As(err, &notFound) {
		return notFound.Message
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message
	}
	return ""
}
