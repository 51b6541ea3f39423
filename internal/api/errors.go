// Package api implements the authenticated client for the newsroom backend.
// Every outbound call carries the stored identity token as a bearer
// credential and every failure is classified into a small taxonomy the
// subscription engine can act on.
package api

import (
	"errors"
	"fmt"
)

// Kind classifies an API failure.
type Kind string

const (
	// KindNoLogin means no credential is present; recoverable by login.
	KindNoLogin Kind = "NO_LOGIN"
	// KindUnauthorized means the credential was rejected by the backend;
	// recoverable by clearing state and logging in again.
	KindUnauthorized Kind = "UNAUTHORIZED"
	// KindHTTPError means the backend rejected the request for a business
	// reason; surfaced verbatim, never retried automatically.
	KindHTTPError Kind = "HTTP_ERROR"
	// KindNetworkError means the request never completed at the transport
	// level; the user may retry manually.
	KindNetworkError Kind = "NETWORK_ERROR"
	// KindMalformedResponse means the backend answered with a success
	// status but the payload is missing an expected field.
	KindMalformedResponse Kind = "MALFORMED_RESPONSE"
)

// Error is the only error type the client produces. Nothing else in the
// codebase constructs one.
type Error struct {
	// Kind tags the failure class.
	Kind Kind
	// Status carries the offending HTTP status when one exists.
	Status int
	// Message is a human-readable description, best-effort body text for
	// HTTP errors.
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("api: %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("api: %s: %s", e.Kind, e.Message)
}

// RequiresLogin reports whether the failure is resolved by (re-)logging in.
func (e *Error) RequiresLogin() bool {
	return e.Kind == KindNoLogin || e.Kind == KindUnauthorized
}

// MalformedResponse builds the error for a success response that is
// missing an expected field. Kept here so the taxonomy has a single
// construction site.
func MalformedResponse(message string) *Error {
	return &Error{Kind: KindMalformedResponse, Message: message}
}

// AsError unwraps err into the client's error type.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
