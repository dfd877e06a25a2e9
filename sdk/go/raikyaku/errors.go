// Package raikyaku provides a Go client for the raikyaku visitor capture API.
package raikyaku

import (
	"errors"
	"fmt"
)

// Error represents an error from the raikyaku API with the HTTP status
// code and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("raikyaku: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 401
	}
	return false
}

// IsConsentDeclined returns true if a capture was blocked by the consent gate.
func IsConsentDeclined(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == "CONSENT_DECLINED"
	}
	return false
}

// IsExportEmpty returns true if an export was refused because the log is empty.
func IsExportEmpty(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == "EXPORT_EMPTY"
	}
	return false
}

// IsConflict returns true if the error is a 409, e.g. a second consent decision.
func IsConflict(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 409
	}
	return false
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}
