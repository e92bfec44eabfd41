// Package errors provides structured error types for tracekit.
//
// Every failure the conversion pipeline can produce carries a machine-readable
// [Code]. Codes split into two groups:
//   - user-visible: INPUT_REJECTED, READ_ERROR, IMAGE_LOAD_ERROR and the
//     generic INVALID_*/NOT_FOUND codes; these abort a run and are shown
//   - recovered: VECTORIZATION_ERROR, METRIC_ERROR, TIFF_DECODE_ERROR; these
//     are logged at warn level and the pipeline degrades instead of failing
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInputRejected, "%s is not an image", name)
//	if errors.Is(err, errors.ErrCodeInputRejected) {
//	    // show the message, do not start a run
//	}
//
//	err := errors.Wrap(errors.ErrCodeReadError, origErr, "read %s", name)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Pipeline errors shown to the user
	ErrCodeInputRejected  Code = "INPUT_REJECTED"
	ErrCodeReadError      Code = "READ_ERROR"
	ErrCodeImageLoadError Code = "IMAGE_LOAD_ERROR"

	// Pipeline errors recovered locally
	ErrCodeVectorization Code = "VECTORIZATION_ERROR"
	ErrCodeMetric        Code = "METRIC_ERROR"
	ErrCodeTIFFDecode    Code = "TIFF_DECODE_ERROR"

	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidVariant  Code = "INVALID_VARIANT"
	ErrCodeInvalidFilename Code = "INVALID_FILENAME"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"

	// Resource not found errors
	ErrCodeNotFound         Code = "NOT_FOUND"
	ErrCodeSessionNotFound  Code = "SESSION_NOT_FOUND"
	ErrCodeArtifactNotFound Code = "ARTIFACT_NOT_FOUND"
	ErrCodeNoResult         Code = "NO_RESULT"

	// Internal errors
	ErrCodeTimeout     Code = "TIMEOUT"
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// recovered lists codes the pipeline absorbs without telling the user.
var recovered = map[Code]bool{
	ErrCodeVectorization: true,
	ErrCodeMetric:        true,
	ErrCodeTIFFDecode:    true,
}

// UserVisible reports whether err must be surfaced to the user.
// Recovered pipeline codes only reach the diagnostic log.
func UserVisible(err error) bool {
	if err == nil {
		return false
	}
	return !recovered[GetCode(err)]
}
