package model

import "fmt"

// UpstreamError represents a generation request that failed outright:
// a connect error or a non-success HTTP status, before any output was
// streamed.
type UpstreamError struct {
	// StatusCode is the HTTP status code (0 if the request never completed).
	StatusCode int

	// Message is the error message.
	Message string

	// Cause is the underlying error (if any).
	Cause error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("model server error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("model server error: %s", e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// StreamError represents a failure while reading an already-established
// stream. The caller may have relayed fragments before this error occurred.
type StreamError struct {
	// Message is the error message.
	Message string

	// Cause is the underlying error (if any).
	Cause error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	return fmt.Sprintf("model stream error: %s", e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *StreamError) Unwrap() error {
	return e.Cause
}

// ParseError represents a malformed line in the streamed response.
type ParseError struct {
	// RawLine is the line that failed to parse.
	RawLine string

	// Cause is the underlying parse error.
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("model response parse error: %v", e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}
