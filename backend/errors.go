package backend

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Kind classifies a backend failure for display.
type Kind string

const (
	KindUnauthorized    Kind = "unauthorized"
	KindNotFound        Kind = "not-found"
	KindConnectionError Kind = "connection-error"
	KindOther           Kind = "other"
)

// Error is returned by Client for every failed completion call.
type Error struct {
	Kind Kind
	// Status is the HTTP status code, or 0 when no response was received.
	Status int
	// Message is the backend's error message or response body.
	Message string
	// Err is the underlying transport or decoding error, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("backend %s (status %d): %s", e.Kind, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("backend %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("backend %s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err. Errors not produced by this package are
// KindOther.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindOther
}

// statusError classifies a non-2xx response.
func statusError(status int, body string) *Error {
	kind := KindOther
	switch status {
	case http.StatusUnauthorized:
		kind = KindUnauthorized
	case http.StatusNotFound:
		kind = KindNotFound
	}
	return &Error{Kind: kind, Status: status, Message: body}
}

// transportError classifies an error from http.Client.Do. Refused
// connections, unresolvable hosts and unreachable networks are connection
// errors; timeouts and everything else are not.
func transportError(err error) *Error {
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return &Error{Kind: KindConnectionError, Err: err}
	}
	return &Error{Kind: KindOther, Err: err}
}

// UserMessage returns the text shown to the user for err. baseURL is the
// configured endpoint.
func UserMessage(err error, baseURL string) string {
	switch KindOf(err) {
	case KindUnauthorized:
		return "Invalid API key. Please check your configuration."
	case KindNotFound:
		return "API endpoint not found. Check your API Base URL: " + baseURL
	case KindConnectionError:
		return "Connection error to API endpoint: " + baseURL
	}
	var be *Error
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return err.Error()
}
