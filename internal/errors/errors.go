package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// InvalidQueryInput indicates a bad identifier, literal, or model parameter
	InvalidQueryInput ErrorCode = "INVALID_QUERY_INPUT"
	// InvalidResourceURI indicates a malformed influxdb:// resource URI
	InvalidResourceURI ErrorCode = "INVALID_RESOURCE_URI"
	// ConnectionFailed indicates the backend is not reachable
	ConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// AuthRejected indicates the backend rejected the configured credentials
	AuthRejected ErrorCode = "AUTH_REJECTED"
	// VersionUnknown indicates version detection was inconclusive
	VersionUnknown ErrorCode = "VERSION_UNKNOWN"
	// BackendTimeout indicates the query exceeded the caller's deadline
	BackendTimeout ErrorCode = "BACKEND_TIMEOUT"
	// BackendQueryError indicates the backend accepted the request but rejected the query
	BackendQueryError ErrorCode = "BACKEND_QUERY_ERROR"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// SetEnv suggests setting an environment variable
	SetEnv FixActionType = "set-env"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Variable    string        `json:"variable,omitempty"`
	Description string        `json:"description,omitempty"`
}

// QueryError represents a fluxmcp error with code, message, and suggestions
type QueryError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a QueryError without an underlying cause
func New(code ErrorCode, message string) *QueryError {
	return &QueryError{
		Code:           code,
		Message:        message,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Newf creates a QueryError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *QueryError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a QueryError wrapping an underlying cause
func Wrap(code ErrorCode, message string, cause error) *QueryError {
	return &QueryError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Error implements the error interface
func (e *QueryError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *QueryError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *QueryError) WithDetails(details interface{}) *QueryError {
	e.Details = details
	return e
}

// CodeOf extracts the error code from err, or InternalError if err is not a QueryError
func CodeOf(err error) ErrorCode {
	var qe *QueryError
	if stderrors.As(err, &qe) {
		return qe.Code
	}
	return InternalError
}

// IsRetryable reports whether the caller may retry the operation.
// Validation and auth failures are terminal; connectivity failures are not.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ConnectionFailed, BackendTimeout:
		return true
	}
	return false
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	ConnectionFailed: {
		{
			Type:        RunCommand,
			Command:     "fluxmcp probe",
			Description: "Verify INFLUX_URL points at a reachable InfluxDB instance",
		},
	},
	AuthRejected: {
		{
			Type:        SetEnv,
			Variable:    "INFLUX_TOKEN",
			Description: "Set a valid API token (v2) or INFLUX_USERNAME/INFLUX_PASSWORD (v1)",
		},
	},
	VersionUnknown: {
		{
			Type:        SetEnv,
			Variable:    "INFLUX_VERSION",
			Description: "Force the backend version with INFLUX_VERSION=1 or INFLUX_VERSION=2",
		},
	},
	BackendTimeout: {
		{
			Type:        SetEnv,
			Variable:    "INFLUX_REQUEST_TIMEOUT_SEC",
			Description: "Raise the request timeout or narrow the query time range",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
