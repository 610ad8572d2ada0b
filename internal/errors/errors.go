// Package errors provides structured error handling for scanhub operations.
// It defines error codes, error types, and utilities for creating and
// classifying errors raised by scan sessions and schedule management.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeCanceled      ErrorCode = "CANCELED"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeConflict      ErrorCode = "CONFLICT"

	// Scan request and execution errors.
	CodeTargetInvalid      ErrorCode = "TARGET_INVALID"
	CodePortsInvalid       ErrorCode = "PORTS_INVALID"
	CodeSpawnFailed        ErrorCode = "SPAWN_FAILED"
	CodeScanFailed         ErrorCode = "SCAN_FAILED"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Database errors.
	CodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	CodeDatabaseQuery      ErrorCode = "DATABASE_QUERY"
)

// ScanError represents an error raised by a scan session or its request.
type ScanError struct {
	Code      ErrorCode
	Message   string
	Target    string
	SessionID string
	Cause     error
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{Code: code, Message: message}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{Code: code, Message: message, Target: target}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Cause: err}
}

// ScheduleError represents schedule store and engine errors.
type ScheduleError struct {
	Code    ErrorCode
	Message string
	JobID   string
	Cause   error
}

// Error implements the error interface.
func (e *ScheduleError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("[%s] %s (job: %s)", e.Code, e.Message, e.JobID)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ScheduleError) Unwrap() error {
	return e.Cause
}

// NewScheduleError creates a new schedule error.
func NewScheduleError(code ErrorCode, message string) *ScheduleError {
	return &ScheduleError{Code: code, Message: message}
}

// NewScheduleErrorWithJob creates a schedule error for a specific job id.
func NewScheduleErrorWithJob(code ErrorCode, message, jobID string) *ScheduleError {
	return &ScheduleError{Code: code, Message: message, JobID: jobID}
}

// WrapScheduleError wraps an existing error as a schedule error.
func WrapScheduleError(code ErrorCode, message string, err error) *ScheduleError {
	return &ScheduleError{Code: code, Message: message, Cause: err}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{Code: code, Message: message}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string) *ConfigError {
	return &ConfigError{Code: code, Message: message, Field: field}
}

// Utility functions for common error operations

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Code
	}
	var schedErr *ScheduleError
	if errors.As(err, &schedErr) {
		return schedErr.Code
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsNotFound reports whether the error refers to a missing session or schedule.
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsConflict reports whether the error is a conflicting-edit error.
func IsConflict(err error) bool {
	return IsCode(err, CodeConflict)
}

// IsValidation reports whether the error is a request-time validation error.
func IsValidation(err error) bool {
	switch GetCode(err) {
	case CodeValidation, CodeTargetInvalid, CodePortsInvalid:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrInvalidTarget creates an error for invalid scan targets.
func ErrInvalidTarget(target string) *ScanError {
	return NewScanErrorWithTarget(CodeTargetInvalid, "invalid IPv4/IPv6 address or network", target)
}

// ErrInvalidPorts creates an error for invalid port specifications.
func ErrInvalidPorts(ports string) *ScanError {
	return &ScanError{Code: CodePortsInvalid, Message: fmt.Sprintf("invalid port specification %q", ports)}
}

// ErrSessionNotFound creates an error for an unknown session id.
func ErrSessionNotFound(id string) *ScanError {
	return &ScanError{Code: CodeNotFound, Message: "scan session not found", SessionID: id}
}

// ErrScheduleNotFound creates an error for an unknown schedule id.
func ErrScheduleNotFound(id string) *ScheduleError {
	return NewScheduleErrorWithJob(CodeNotFound, "schedule not found", id)
}

// ErrDatabaseQuery creates an error for database query failures.
func ErrDatabaseQuery(operation string, err error) *ScheduleError {
	return WrapScheduleError(CodeDatabaseQuery, fmt.Sprintf("database %s failed", operation), err)
}
