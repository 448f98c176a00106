package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Validation errors: caller mistakes, never retried
	ErrorUnsupportedType ErrorCode = "UNSUPPORTED_TYPE"
	ErrorTooLarge        ErrorCode = "TOO_LARGE"
	ErrorCorruptImage    ErrorCode = "CORRUPT_IMAGE"

	// Model and resource errors: bad deployment rather than bad input
	ErrorModelUnavailable  ErrorCode = "MODEL_UNAVAILABLE"
	ErrorRecognitionFailed ErrorCode = "RECOGNITION_FAILED"
	ErrorEncodeFailed      ErrorCode = "ENCODE_FAILED"
)

// Kind separates caller mistakes from deployment problems
type Kind int

const (
	KindValidation Kind = iota
	KindInternal
)

func (k Kind) String() string {
	if k == KindValidation {
		return "validation"
	}
	return "internal"
}

// Kind returns the error kind for a code
func (c ErrorCode) Kind() Kind {
	switch c {
	case ErrorUnsupportedType, ErrorTooLarge, ErrorCorruptImage:
		return KindValidation
	default:
		return KindInternal
	}
}

// PipelineError represents a structured pipeline failure
type PipelineError struct {
	Code      ErrorCode
	Message   string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Kind returns whether the error is a validation or an internal error
func (e *PipelineError) Kind() Kind {
	return e.Code.Kind()
}

// Factory functions for common errors

func NewUnsupportedTypeError(mediaType string, allowed []string) *PipelineError {
	return &PipelineError{
		Code:      ErrorUnsupportedType,
		Message:   fmt.Sprintf("Unsupported format %q. Use: %v", mediaType, allowed),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"media_type": mediaType,
		},
	}
}

func NewTooLargeError(size, limit int64) *PipelineError {
	return &PipelineError{
		Code:      ErrorTooLarge,
		Message:   fmt.Sprintf("File size exceeds %dMB limit", limit/(1024*1024)),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"size":  size,
			"limit": limit,
		},
	}
}

func NewTooManyPixelsError(width, height int, limit int64) *PipelineError {
	return &PipelineError{
		Code:      ErrorTooLarge,
		Message:   fmt.Sprintf("Image dimensions %dx%d exceed %d pixel limit", width, height, limit),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"width":  width,
			"height": height,
			"limit":  limit,
		},
	}
}

func NewCorruptImageError(cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorCorruptImage,
		Message:   "Invalid image file",
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewModelUnavailableError(model string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorModelUnavailable,
		Message:   fmt.Sprintf("Model unavailable: %s", model),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"model": model,
		},
		Cause: cause,
	}
}

func NewRecognitionFailedError(backend string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorRecognitionFailed,
		Message:   fmt.Sprintf("Text recognition failed: %s", backend),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"backend": backend,
		},
		Cause: cause,
	}
}

func NewEncodeFailedError(cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorEncodeFailed,
		Message:   "Failed to encode result image",
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ToMap converts error to map for structured logging
func (e *PipelineError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"kind":       e.Kind().String(),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}

// CodeOf extracts the error code from err; errors outside the taxonomy are internal
func CodeOf(err error) (ErrorCode, bool) {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}

// KindOf classifies any error; unknown errors count as internal
func KindOf(err error) Kind {
	if code, ok := CodeOf(err); ok {
		return code.Kind()
	}
	return KindInternal
}
