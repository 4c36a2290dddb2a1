package errors

import (
	"errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the orientation worker
 *
 * Detector problems never reach this package: they degrade to zero-confidence
 * signals inside the resolver. Everything here is fatal for one document.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Processing errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorDocumentOpen      ErrorCode = "DOCUMENT_OPEN_FAILED"
	ErrorRasterize         ErrorCode = "RASTERIZE_FAILED"
	ErrorInvalidJob        ErrorCode = "INVALID_JOB"

	// Output errors
	ErrorOutputNameExhausted ErrorCode = "OUTPUT_NAME_EXHAUSTED"
	ErrorSaveFailed          ErrorCode = "SAVE_FAILED"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// HasCode reports whether err wraps a ProcessingError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var pe *ProcessingError
	return errors.As(err, &pe) && pe.Code == code
}

// Factory functions for common errors

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewDocumentOpenError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDocumentOpen,
		Message:   fmt.Sprintf("Cannot open document %s", path),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"path": path,
		},
		Cause: cause,
	}
}

func NewRasterizeError(path string, page int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorRasterize,
		Message:   fmt.Sprintf("Cannot rasterize page %d of %s", page, path),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"path": path,
			"page": page,
		},
		Cause: cause,
	}
}

func NewInvalidJobError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidJob,
		Message:   "Job payload is invalid",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewOutputNameExhaustedError(input string, attempts int) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOutputNameExhausted,
		Message:   fmt.Sprintf("No free output name for %s after %d candidates; clean up existing rotated files", input, attempts),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"input":    input,
			"attempts": attempts,
		},
	}
}

func NewSaveFailedError(path string, alternate string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorSaveFailed,
		Message:   fmt.Sprintf("Cannot write output to %s or %s", path, alternate),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"path":      path,
			"alternate": alternate,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store processing results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ToMap converts error to map for status storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.JobID != "" {
		result["job_id"] = e.JobID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
