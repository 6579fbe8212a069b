package errors

import "fmt"

// ErrorCode represents an Atelier error code.
type ErrorCode string

const (
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED" // 422: element failed schema validation
	ErrSecurityRejected ErrorCode = "SECURITY_REJECTED" // 422: content failed the security pipeline
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrAmbiguousMatch   ErrorCode = "AMBIGUOUS_MATCH"   // 400: name resolved to multiple elements
	ErrConflict         ErrorCode = "CONFLICT"          // 409
	ErrRemote           ErrorCode = "REMOTE"            // 502: backend failure, see Retryable
	ErrConfiguration    ErrorCode = "CONFIGURATION"     // 412: remote unset, sync disabled
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// AtelierError represents a structured error with code, status, and details.
type AtelierError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Retryable is meaningful only for ErrRemote: true means the failure is
	// transient (network, 5xx, timeout) and the call may be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *AtelierError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationFailed creates a 422 error carrying the specific validation messages.
func NewValidationFailed(ref string, errs []string) *AtelierError {
	return &AtelierError{
		Code:    ErrValidationFailed,
		Status:  422,
		Message: fmt.Sprintf("element %s failed validation: %v", ref, errs),
		Details: map[string]any{"element": ref, "errors": errs},
	}
}

// NewSecurityRejected creates a 422 error for content rejected by the security pipeline.
func NewSecurityRejected(ref, findingCode, detail string) *AtelierError {
	return &AtelierError{
		Code:    ErrSecurityRejected,
		Status:  422,
		Message: fmt.Sprintf("element %s rejected: %s", ref, detail),
		Details: map[string]any{"element": ref, "finding": findingCode},
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *AtelierError {
	return &AtelierError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing element or remote path.
func NewNotFound(identifier string) *AtelierError {
	return &AtelierError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewAmbiguousMatch creates a 400 error listing every candidate that matched.
// Candidates must be sorted by the caller so the message is deterministic.
func NewAmbiguousMatch(name string, candidates []string) *AtelierError {
	return &AtelierError{
		Code:    ErrAmbiguousMatch,
		Status:  400,
		Message: fmt.Sprintf("name %q matches multiple elements: %v; use the exact slug", name, candidates),
		Details: map[string]any{"name": name, "candidates": candidates},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *AtelierError {
	return &AtelierError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewRemote creates a 502 error for a backend failure. Transient failures
// (network errors, 5xx, timeouts) set retryable; 4xx responses do not.
func NewRemote(msg string, retryable bool) *AtelierError {
	return &AtelierError{
		Code:      ErrRemote,
		Status:    502,
		Message:   msg,
		Retryable: retryable,
	}
}

// NewRemoteStatus creates a remote error from an HTTP status code, deriving
// retryability from the status class.
func NewRemoteStatus(status int, msg string) *AtelierError {
	return &AtelierError{
		Code:      ErrRemote,
		Status:    502,
		Message:   fmt.Sprintf("remote returned %d: %s", status, msg),
		Details:   map[string]any{"remote_status": status},
		Retryable: status >= 500,
	}
}

// NewConfiguration creates a 412 error for missing or contradictory configuration.
func NewConfiguration(msg string) *AtelierError {
	return &AtelierError{
		Code:    ErrConfiguration,
		Status:  412,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *AtelierError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &AtelierError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is an AtelierError with the given code.
func Is(err error, code ErrorCode) bool {
	if aErr, ok := err.(*AtelierError); ok {
		return aErr.Code == code
	}
	return false
}

// Code extracts the error code, or ErrInternal for foreign errors.
func Code(err error) ErrorCode {
	if aErr, ok := err.(*AtelierError); ok {
		return aErr.Code
	}
	return ErrInternal
}

// IsRetryable reports whether err is a remote error worth retrying.
func IsRetryable(err error) bool {
	if aErr, ok := err.(*AtelierError); ok {
		return aErr.Code == ErrRemote && aErr.Retryable
	}
	return false
}
