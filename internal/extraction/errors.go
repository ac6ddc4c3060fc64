package extraction

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an extraction failure
type Code string

const (
	CodeAPINotConfigured  Code = "API_NOT_CONFIGURED"
	CodeInvalidRequest    Code = "INVALID_REQUEST"
	CodeExtractionFailed  Code = "EXTRACTION_FAILED"
	CodeUnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	CodeImageTooLarge     Code = "IMAGE_TOO_LARGE"
	CodeUnauthorized      Code = "UNAUTHORIZED"
)

// Error is the failure reported to callers of Extract. Details carries the
// underlying reason when there is one.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus is the status code the error is served with
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidRequest, CodeUnsupportedFormat, CodeImageTooLarge:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the same request may succeed if sent again.
// Only provider failures qualify; everything else needs a different input
// or configuration.
func (e *Error) Retryable() bool {
	return e.Code == CodeExtractionFailed
}

func newError(code Code, message string, cause error) *Error {
	e := &Error{Code: code, Message: message}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// AsError extracts an *Error from err. Anything else is reported as an
// extraction failure.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(CodeExtractionFailed, "Failed to process receipt", err)
}
