package router

import (
	"fmt"
	"strconv"
)

// providerUnavailableError signals that every candidate was filtered out, for
// 503 mapping. No side effects have happened when this is returned.
type providerUnavailableError struct{ name string }

func (e providerUnavailableError) Error() string {
	return "no provider available for model: " + e.name
}

// ErrProviderUnavailable constructs a providerUnavailableError.
func ErrProviderUnavailable(name string) error { return providerUnavailableError{name: name} }

// IsProviderUnavailable reports whether err indicates exhausted candidates.
func IsProviderUnavailable(err error) bool {
	_, ok := err.(providerUnavailableError)
	return ok
}

// upstreamTimeoutError signals a backend that did not answer in time.
type upstreamTimeoutError struct {
	providerID string
	cause      error
}

func (e upstreamTimeoutError) Error() string {
	return "upstream timeout: " + e.providerID + ": " + e.cause.Error()
}

func (e upstreamTimeoutError) Unwrap() error { return e.cause }

// ErrUpstreamTimeout constructs an upstreamTimeoutError.
func ErrUpstreamTimeout(providerID string, cause error) error {
	return upstreamTimeoutError{providerID: providerID, cause: cause}
}

// upstreamUnavailableError signals a connection failure or 5xx answer.
type upstreamUnavailableError struct {
	providerID string
	cause      error
}

func (e upstreamUnavailableError) Error() string {
	return "upstream unavailable: " + e.providerID + ": " + e.cause.Error()
}

func (e upstreamUnavailableError) Unwrap() error { return e.cause }

// ErrUpstreamUnavailable constructs an upstreamUnavailableError.
func ErrUpstreamUnavailable(providerID string, cause error) error {
	return upstreamUnavailableError{providerID: providerID, cause: cause}
}

// IsUpstreamTransient reports whether err is worth a retry or a failover hop.
func IsUpstreamTransient(err error) bool {
	switch err.(type) {
	case upstreamTimeoutError, upstreamUnavailableError:
		return true
	}
	return false
}

// upstreamPermanentError carries a 4xx upstream answer through unchanged.
// Permanent failures are never retried.
type upstreamPermanentError struct {
	providerID string
	status     int
	msg        string
}

func (e upstreamPermanentError) Error() string {
	return "upstream rejected request: " + e.providerID + ": " + strconv.Itoa(e.status) + ": " + e.msg
}

// StatusCode exposes the upstream status for passthrough.
func (e upstreamPermanentError) StatusCode() int { return e.status }

// Message exposes the upstream error body for passthrough.
func (e upstreamPermanentError) Message() string { return e.msg }

// ErrUpstreamPermanent constructs an upstreamPermanentError.
func ErrUpstreamPermanent(providerID string, status int, msg string) error {
	if msg == "" {
		msg = fmt.Sprintf("status %d", status)
	}
	return upstreamPermanentError{providerID: providerID, status: status, msg: msg}
}

// IsUpstreamPermanent reports whether err is a 4xx upstream rejection.
func IsUpstreamPermanent(err error) (upstreamPermanentError, bool) {
	e, ok := err.(upstreamPermanentError)
	return e, ok
}
