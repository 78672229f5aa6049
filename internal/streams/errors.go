package streams

import (
	"errors"
	"fmt"
)

// StreamError represents a domain-specific error
type StreamError struct {
	Code    string
	Message string
	Field   string // offending config field for INVALID_PARAMS
	Cause   error
}

func (e *StreamError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeStreamNotFound = "STREAM_NOT_FOUND"
	ErrCodeInvalidParams  = "INVALID_PARAMS"
	ErrCodeSpawnFailed    = "SPAWN_FAILED"
	ErrCodeOutputDirError = "OUTPUT_DIR_ERROR"
	ErrCodeStartCancelled = "START_CANCELLED"
	ErrCodeStopTimeout    = "STOP_TIMEOUT"
)

// NewStreamError creates a new stream error
func NewStreamError(code, message string, cause error) *StreamError {
	return &StreamError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func invalidParam(field, message string) *StreamError {
	return &StreamError{
		Code:    ErrCodeInvalidParams,
		Message: message,
		Field:   field,
	}
}

// ErrorCode returns the StreamError code anywhere in err's chain, or "".
func ErrorCode(err error) string {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
