package model

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationMissing is returned when the Facebook app id or secret
	// has not been configured.
	ErrConfigurationMissing = errors.New("facebook app id or app secret not configured")

	// ErrTransport wraps network and HTTP-level failures talking to the Graph API.
	ErrTransport = errors.New("graph api transport error")

	// ErrMalformedResponse is returned when a Graph API response is not JSON or
	// lacks a field the caller requires.
	ErrMalformedResponse = errors.New("malformed graph api response")

	// ErrCredentialAbsent is returned when no usable credential is stored.
	ErrCredentialAbsent = errors.New("credential absent")

	// ErrCredentialExpired is returned when a stored credential has expired.
	// It wraps ErrCredentialAbsent: an expired credential is treated as absent.
	ErrCredentialExpired = fmt.Errorf("%w: expired", ErrCredentialAbsent)

	// ErrNotFound is returned by stores when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks request validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

// APIError is a well-formed error response from the Graph API.
type APIError struct {
	Message    string
	Type       string
	Code       int
	FBTraceID  string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("graph api error (%s, code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("graph api error (code %d): %s", e.Code, e.Message)
}
