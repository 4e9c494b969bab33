// Package kite provides a client for the Kite Connect REST API.
package kite

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types returned inside the Kite Connect error envelope.
const (
	ErrorTypeToken = "TokenException"
	ErrorTypeInput = "InputException"
)

// APIError is a non-success response from the Kite Connect API.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int
	// Message is the broker-supplied error message.
	Message string
	// ErrorType is the broker's error classification, e.g. "TokenException".
	ErrorType string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("kite api error (%s, HTTP %d): %s", e.ErrorType, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("kite api error (HTTP %d): %s", e.StatusCode, e.Message)
}

// IsTokenError reports whether err is an invalid or expired access token
// failure from the broker. Detection uses the structured error type and
// status code, never the message text.
func IsTokenError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.ErrorType == ErrorTypeToken {
		return true
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}
